package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/command-runner/pkg/command"
	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/vars"
)

// OutputPath returns the interpolated save_to path, or "" when the
// document does not save output.
func OutputPath(def *command.Definition, ctx *core.Context) string {
	if def.Output == nil || def.Output.SaveTo == "" {
		return ""
	}
	return vars.Interpolate(def.Output.SaveTo, ctx)
}

// Save renders the run output and writes it to the document's save_to
// path, creating parent directories. It returns the written path, or ""
// when nothing was configured. Failures match core.ErrOutputWrite.
func Save(def *command.Definition, run *core.RunResult) (string, error) {
	path := OutputPath(def, run.Context)
	if path == "" {
		return "", nil
	}

	content, err := Render(def, run)
	if err != nil {
		return "", core.ErrOutputWrite.WithCause(err)
	}
	if err := atomicWrite(path, content); err != nil {
		return "", core.ErrOutputWrite.
			WithCause(err).
			WithDetails(map[string]interface{}{"path": path})
	}
	return path, nil
}

// atomicWrite writes data to a temp file in the target directory and
// renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := ensureDir(dir); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
