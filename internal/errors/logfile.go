package errors

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// LogDirEnv overrides the directory aienv writes its log file to.
	LogDirEnv   = "AIENV_LOG_DIR"
	LogFileName = "aienv.log"

	maxLogSize    = 10 * 1024 * 1024
	maxLogBackups = 5
)

// logDirCandidates lists directories for the log file, most preferred
// first. The working directory is always the last resort.
func logDirCandidates() []string {
	var dirs []string
	if dir := os.Getenv(LogDirEnv); dir != "" {
		dirs = append(dirs, dir)
	} else if cache, err := os.UserCacheDir(); err == nil {
		dirs = append(dirs, filepath.Join(cache, "aienv", "logs"))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}

// firstWritableDir returns the first candidate that exists or can be
// created and accepts new files, with its index.
func firstWritableDir(candidates []string) (string, int, error) {
	var errs []error
	for i, dir := range candidates {
		if err := os.MkdirAll(dir, 0750); err != nil {
			errs = append(errs, err)
			continue
		}
		probe, err := os.CreateTemp(dir, ".aienv-probe-*")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		probe.Close()
		os.Remove(probe.Name())
		return dir, i, nil
	}
	return "", -1, fmt.Errorf("no writable log directory: %w", errors.Join(errs...))
}

func openLogFile() (*os.File, error) {
	dir, index, err := firstWritableDir(logDirCandidates())
	if err != nil {
		return nil, err
	}
	if index > 0 {
		fmt.Fprintf(os.Stderr, "Warning: preferred log directory is not writable, logging to %s\n", dir)
	}

	path := filepath.Join(dir, LogFileName)
	if err := rotate(path, maxLogSize, maxLogBackups); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to rotate %s: %v\n", path, err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// rotate moves path to path.1 once it holds limit bytes, shifting older
// backups up and dropping anything beyond keep.
func rotate(path string, limit int64, keep int) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() < limit {
		return nil
	}

	backup := func(n int) string { return fmt.Sprintf("%s.%d", path, n) }
	if err := os.Remove(backup(keep)); err != nil && !os.IsNotExist(err) {
		return err
	}
	for n := keep - 1; n >= 1; n-- {
		if _, err := os.Stat(backup(n)); err != nil {
			continue
		}
		if err := os.Rename(backup(n), backup(n+1)); err != nil {
			return err
		}
	}
	return os.Rename(path, backup(1))
}
