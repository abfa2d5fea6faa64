package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// DefaultOllamaImage is the upstream server image.
	DefaultOllamaImage = "ollama/ollama:latest"
	// DefaultOllamaName is the container name aienv manages.
	DefaultOllamaName = "aienv-ollama"

	ollamaPort      = 11434
	ollamaModelsDir = "/root/.ollama/models"
)

// OllamaServer runs the generative-text server as a container, sharing the
// portable installation's model directory.
type OllamaServer struct {
	containerRuntime ContainerRuntime
	image            string
	name             string
	hostPort         int
	modelsDir        string
}

// NewOllamaServer creates a server definition. modelsDir is created on start
// and mounted so pulled models persist on the portable drive.
func NewOllamaServer(containerRuntime ContainerRuntime, image, name string, hostPort int, modelsDir string) *OllamaServer {
	if image == "" {
		image = DefaultOllamaImage
	}
	if name == "" {
		name = DefaultOllamaName
	}
	if hostPort == 0 {
		hostPort = ollamaPort
	}
	return &OllamaServer{
		containerRuntime: containerRuntime,
		image:            image,
		name:             name,
		hostPort:         hostPort,
		modelsDir:        modelsDir,
	}
}

func (s *OllamaServer) Name() string {
	return s.name
}

func (s *OllamaServer) HostPort() int {
	return s.hostPort
}

// Start pulls the image and starts the container, returning its ID.
func (s *OllamaServer) Start(ctx context.Context) (string, error) {
	if err := s.containerRuntime.PullImage(ctx, s.image); err != nil {
		return "", fmt.Errorf("failed to pull Ollama image: %w", err)
	}

	opts := RunOptions{
		Name:  s.name,
		Image: s.image,
		Ports: map[int]int{s.hostPort: ollamaPort},
	}
	if s.modelsDir != "" {
		absModels, err := filepath.Abs(s.modelsDir)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for models directory: %w", err)
		}
		if err := os.MkdirAll(absModels, 0755); err != nil {
			return "", fmt.Errorf("failed to create models directory: %w", err)
		}
		opts.VolumeMounts = map[string]string{absModels: ollamaModelsDir}
	}

	id, err := s.containerRuntime.Start(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("failed to start Ollama container: %w", err)
	}

	slog.Info("Ollama container running", "containerID", id, "port", s.hostPort)
	return id, nil
}

func (s *OllamaServer) Stop(ctx context.Context, containerID string) error {
	return s.containerRuntime.Stop(ctx, containerID)
}

func (s *OllamaServer) IsRunning(ctx context.Context, containerID string) (bool, error) {
	return s.containerRuntime.IsRunning(ctx, containerID)
}
