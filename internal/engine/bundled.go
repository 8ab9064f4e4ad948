package engine

import (
	"path/filepath"
	"runtime"
)

// BundledPaths returns the working directory and executable of an engine
// shipped next to the application: <appDir>/engine/<name>/<name>, with
// ".exe" appended on Windows.
func BundledPaths(appDir, name string) (workDir, path string) {
	workDir = filepath.Join(appDir, "engine", name)
	exe := name
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}
	return workDir, filepath.Join(workDir, exe)
}
