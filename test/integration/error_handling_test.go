package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildCLI compiles cmd/aienv into dir and returns the binary path.
func buildCLI(t *testing.T, dir string) string {
	t.Helper()
	originalDir, _ := os.Getwd()

	binaryPath := filepath.Join(dir, "aienv")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/aienv")
	buildCmd.Dir = originalDir
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build CLI binary: %v\n%s", err, output)
	}
	return binaryPath
}

// cliEnv isolates the CLI from the caller's installation override and
// config, and points its log file at logDir.
func cliEnv(logDir string) []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "AI_ENV_PATH=") || strings.HasPrefix(kv, "AIENV_") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "AIENV_LOG_DIR="+logDir, "HOME="+logDir)
}

func TestCLI_ErrorHandling_InstallationNotFound(t *testing.T) {
	tempDir := t.TempDir()
	binaryPath := buildCLI(t, tempDir)
	emptyRoot := filepath.Join(tempDir, "drive")
	if err := os.MkdirAll(emptyRoot, 0755); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(binaryPath, "locate", "--root", emptyRoot)
	cmd.Dir = tempDir
	cmd.Env = cliEnv(tempDir)
	output, err := cmd.CombinedOutput()

	// Should exit with non-zero code
	if err == nil {
		t.Error("Expected command to fail but it succeeded")
	}

	outputStr := string(output)

	expectedParts := []string{
		"[ERROR]",
		"AI Environment installation not found",
		"Cause:",
		"Suggestion:",
		"AI_ENV_PATH",
	}
	for _, part := range expectedParts {
		if !strings.Contains(outputStr, part) {
			t.Errorf("Expected output to contain %q, but got: %s", part, outputStr)
		}
	}

	// Verify log file was created
	logFile := filepath.Join(tempDir, "aienv.log")
	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("Expected aienv.log to be created")
	}
}

func TestCLI_Locate_FindsInstallation(t *testing.T) {
	tempDir := t.TempDir()
	binaryPath := buildCLI(t, tempDir)

	drive := filepath.Join(tempDir, "drive")
	root := filepath.Join(drive, "AI_Lab", "AI_Environment")
	if err := os.MkdirAll(filepath.Join(root, "Ollama"), 0755); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(binaryPath, "locate", "--root", drive)
	cmd.Dir = tempDir
	cmd.Env = cliEnv(tempDir)
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("Expected locate to succeed: %v", err)
	}

	if got := strings.TrimSpace(string(output)); !strings.HasSuffix(got, root) {
		t.Errorf("Expected stdout to end with %s, got: %s", root, got)
	}
}

func TestCLI_ErrorHandling_InvalidConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	binaryPath := buildCLI(t, tempDir)

	invalidYAML := `ollama:
  port: 99999
  host: localhost`
	configFile := filepath.Join(tempDir, "aienv.yaml")
	if err := os.WriteFile(configFile, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	cmd := exec.Command(binaryPath, "locate", "--config", configFile)
	cmd.Dir = tempDir
	cmd.Env = cliEnv(tempDir)
	output, err := cmd.CombinedOutput()

	if err == nil {
		t.Error("Expected command to fail but it succeeded")
	}

	outputStr := string(output)
	if !strings.Contains(outputStr, "Failed to load configuration") {
		t.Errorf("Expected configuration error, but got: %s", outputStr)
	}
}

func TestCLI_ErrorHandling_NonexistentConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	binaryPath := buildCLI(t, tempDir)

	cmd := exec.Command(binaryPath, "locate", "--config", filepath.Join(tempDir, "nonexistent.yaml"))
	cmd.Env = cliEnv(tempDir)
	output, err := cmd.CombinedOutput()

	if err == nil {
		t.Error("Expected command to fail but it succeeded")
	}

	if !strings.Contains(string(output), "config file not found") {
		t.Errorf("Expected missing config error, but got: %s", output)
	}
}

func TestCLI_ErrorHandling_InvalidFlag(t *testing.T) {
	tempDir := t.TempDir()
	binaryPath := buildCLI(t, tempDir)

	cmd := exec.Command(binaryPath, "launch", "--invalid-flag")
	cmd.Env = cliEnv(tempDir)
	output, err := cmd.CombinedOutput()

	if err == nil {
		t.Error("Expected command to fail but it succeeded")
	}

	if !strings.Contains(string(output), "unknown flag") {
		t.Errorf("Expected error output about unknown flag, but got: %s", output)
	}
}
