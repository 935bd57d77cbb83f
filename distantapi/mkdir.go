package distantapi

import (
	"path"

	"github.com/smnsjas/go-distant/kind"
)

// mkdirOne creates one directory component. No mode is sent with the
// request, so the server's default mode applies.
func (a *Api) mkdirOne(p string) error {
	return a.sftpClient.Mkdir(p)
}

// CreateDir creates path. When all is true, missing parent components
// are created too: the original's walk-up-then-replay-down algorithm
// tries mkdir, and on failure walks up to the parent repeatedly until
// one succeeds, then replays the failed components back down in order.
// Reaching the root with every component still failing surfaces
// PermissionDenied unconditionally, matching the original's hardcoded
// io::ErrorKind::PermissionDenied on that path regardless of the
// underlying cause.
func (a *Api) CreateDir(dirPath string, all bool) error {
	if !all {
		if err := a.mkdirOne(dirPath); err != nil {
			return wrapErr(err, "distantapi: mkdir %q: %v", dirPath, err)
		}
		return nil
	}

	var failedPaths []string
	curPath := dirPath
	var firstErr error
	for {
		err := a.mkdirOne(curPath)
		if err == nil {
			break
		}
		failedPaths = append(failedPaths, curPath)
		parent := path.Dir(curPath)
		if parent == curPath {
			if firstErr == nil {
				firstErr = err
			}
			return kind.Wrap(firstErr, kind.PermissionDenied, "distantapi: create_dir %q: %v", dirPath, firstErr)
		}
		if firstErr == nil {
			firstErr = err
		}
		curPath = parent
	}

	for i := len(failedPaths) - 1; i >= 0; i-- {
		if err := a.mkdirOne(failedPaths[i]); err != nil {
			return wrapErr(err, "distantapi: mkdir %q: %v", failedPaths[i], err)
		}
	}
	return nil
}
