package mirnaprep

import (
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandHome expands ~ to its proper path, where appropriate. Google Storage
// paths are returned unchanged.
func ExpandHome(path string) string {
	if IsGoogleStorage(path) {
		return path
	}

	usr, err := user.Current()
	if err != nil {
		return path
	}

	if path == "~" {
		// In case of "~", which won't be caught by the "else if"
		path = usr.HomeDir
	} else if strings.HasPrefix(path, "~/") {
		// Use strings.HasPrefix so we don't match paths like
		// "/something/~/something/"
		path = filepath.Join(usr.HomeDir, path[2:])
	}

	return path
}
