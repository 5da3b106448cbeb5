package devenv

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const stateDirPrefix = "<dev_state>"

var modName = regexp.MustCompile(`(?m)^module *([\w\-_./]+)$`)

func isWorkspaceRoot(currentdir string) bool {
	mod, err := os.ReadFile(filepath.Join(currentdir, "go.mod"))
	if err != nil {
		return false
	}
	matches := modName.FindSubmatch(mod)
	return len(matches) >= 2 && string(matches[1]) == "xsheet-companion"
}

func GetWorkspaceRoot() (string, error) {
	currentdir, err := filepath.Abs(".")
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs("/")
	if err != nil {
		return "", err
	}

	for currentdir != root {
		if isWorkspaceRoot(currentdir) {
			return currentdir, nil
		}
		currentdir = filepath.Join(currentdir, "..")
	}

	return "", os.ErrNotExist
}

// the state directory lives in the workspace when running from a checkout,
// otherwise it falls back to the user's config directory.
func stateDir() (string, error) {
	root, err := GetWorkspaceRoot()
	if err == nil {
		return filepath.Join(root, "dev", ".state"), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "xsheet"), nil
}

// ResolvePath expands a leading "<dev_state>" into the state directory,
// creating the directory if needed. Other paths are returned unchanged.
func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, stateDirPrefix) {
		return path, nil
	}

	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return "", err
	}

	subpath := strings.TrimPrefix(path, stateDirPrefix)
	subpath = strings.TrimLeft(subpath, `/\`)
	return filepath.Join(dir, filepath.FromSlash(subpath)), nil
}
