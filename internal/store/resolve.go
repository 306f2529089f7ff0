package store

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// candidatePaths returns database file locations in preference order: the
// executable's directory, the user config (roaming) directory, the user
// cache (local) directory, and finally the system temp directory. When an
// explicit path is configured it is the only candidate.
func candidatePaths(explicit, dirName, fileName string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	var paths []string

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), fileName))
	} else {
		logrus.Warnf("Cannot determine executable directory: %v", err)
	}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, dirName, fileName))
	}
	if dir, err := os.UserCacheDir(); err == nil {
		paths = append(paths, filepath.Join(dir, dirName, fileName))
	}

	paths = append(paths, filepath.Join(os.TempDir(), dirName, fileName))
	return paths
}
