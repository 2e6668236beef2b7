package whisperlive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// PythonEnvVar overrides interpreter resolution entirely when set.
const PythonEnvVar = "VOXLIVE_PYTHON"

// Probe reports a successful whisper_live environment check.
type Probe struct {
	Interpreter string
	Version     string
}

const versionProbe = `import whisper_live
print(getattr(whisper_live, "__version__", "unknown"))
`

// ResolveInterpreter locates the Python interpreter hosting the server.
// Order: the VOXLIVE_PYTHON override, an explicit preference from flag or
// config, then python3 and python on PATH. A preference containing a path
// separator must point at an executable file; a bare name is looked up on
// PATH.
func ResolveInterpreter(preferred string) (string, error) {
	if override := strings.TrimSpace(os.Getenv(PythonEnvVar)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("%s is not executable: %w", PythonEnvVar, err)
		}
		return override, nil
	}

	if preferred := strings.TrimSpace(preferred); preferred != "" {
		if strings.ContainsRune(preferred, os.PathSeparator) {
			if err := ensureExecutable(preferred); err != nil {
				return "", fmt.Errorf("configured python %s: %w", preferred, err)
			}
			return preferred, nil
		}
		path, err := exec.LookPath(preferred)
		if err != nil {
			return "", fmt.Errorf("configured python %q not found on PATH: %w", preferred, err)
		}
		return path, nil
	}

	for _, candidate := range []string{"python3", "python"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no python interpreter found on PATH; install Python 3 or set %s", PythonEnvVar)
}

// Preflight verifies that interpreter can import whisper_live and reports the
// installed version.
func Preflight(ctx context.Context, interpreter string, logger *zap.Logger) (Probe, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, interpreter, "-c", versionProbe)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("probing whisper_live", zap.String("interpreter", interpreter))
	if err := cmd.Run(); err != nil {
		errText := lastLine(stderr.String())
		if isModuleNotFoundError(errText) {
			return Probe{}, fmt.Errorf("whisper_live is not installed for %s; run `%s -m pip install whisper-live` (%s)", interpreter, interpreter, errText)
		}
		if errText != "" {
			return Probe{}, fmt.Errorf("probe whisper_live with %s: %w (%s)", interpreter, err, errText)
		}
		return Probe{}, fmt.Errorf("probe whisper_live with %s: %w", interpreter, err)
	}

	return Probe{Interpreter: interpreter, Version: strings.TrimSpace(stdout.String())}, nil
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isModuleNotFoundError(stderr string) bool {
	value := strings.ToLower(stderr)
	return strings.Contains(value, "modulenotfounderror") || strings.Contains(value, "no module named")
}

func lastLine(output string) string {
	trimmed := strings.TrimSpace(output)
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return strings.TrimSpace(trimmed)
}
