package environment

import (
	"fmt"
	"strings"
)

// Shells accepted by ShellScript.
const (
	ShellCmd        = "cmd"
	ShellPowerShell = "powershell"
	ShellBash       = "bash"
)

// ActivationVars are the variables activation sets, in display order.
var ActivationVars = []string{VarActiveEnv, VarEnvPrefix, VarInstallRoot, VarRuntimePath, VarPackageMgr}

// ShellScript renders the search path and the named variables as
// assignments for shell, so `eval "$(aienv env)"` and friends reproduce the
// activation in an interactive session. Unset variables are skipped. With no
// keys, ActivationVars are used.
func ShellScript(rt *Runtime, shell string, keys ...string) (string, error) {
	if len(keys) == 0 {
		keys = ActivationVars
	}

	var assign func(key, value string) string
	switch strings.ToLower(shell) {
	case ShellCmd:
		assign = func(key, value string) string {
			return fmt.Sprintf(`set "%s=%s"`, key, value)
		}
	case ShellPowerShell, "pwsh":
		assign = func(key, value string) string {
			return fmt.Sprintf("$env:%s = '%s'", key, strings.ReplaceAll(value, "'", "''"))
		}
	case ShellBash, "sh", "zsh":
		assign = func(key, value string) string {
			return fmt.Sprintf("export %s='%s'", key, strings.ReplaceAll(value, "'", `'\''`))
		}
	default:
		return "", fmt.Errorf("unsupported shell %q (use %s, %s or %s)", shell, ShellCmd, ShellPowerShell, ShellBash)
	}

	lines := []string{assign(VarSearchPath, rt.PathString())}
	for _, key := range keys {
		if value, ok := rt.Get(key); ok {
			lines = append(lines, assign(key, value))
		}
	}
	return strings.Join(lines, "\n") + "\n", nil
}
