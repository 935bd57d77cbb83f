package distantapi

import (
	"os"

	"github.com/smnsjas/go-distant/kind"
)

// classifyErr maps a backend error to its wire kind (spec §7's
// classification table): a missing path is NotFound, a denied filesystem
// op is PermissionDenied, anything else is Other. pkg/sftp's errors
// satisfy os.IsNotExist/os.IsPermission the same way os package errors
// do, so the stdlib classifiers apply directly to SFTP failures too.
func classifyErr(err error) kind.Kind {
	switch {
	case os.IsNotExist(err):
		return kind.NotFound
	case os.IsPermission(err):
		return kind.PermissionDenied
	default:
		return kind.Other
	}
}

// wrapErr wraps err with its classified kind and a distantapi-prefixed
// description, the package's uniform error-construction helper.
func wrapErr(err error, format string, args ...any) error {
	return kind.Wrap(err, classifyErr(err), format, args...)
}
