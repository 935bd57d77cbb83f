package distantapi

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smnsjas/go-distant/kind"
)

func TestClassifyErrMapsStdlibSentinelsToKind(t *testing.T) {
	notFound := &os.PathError{Op: "lstat", Path: "/no/such/file", Err: os.ErrNotExist}
	denied := &os.PathError{Op: "open", Path: "/root/secret", Err: os.ErrPermission}
	other := errors.New("connection reset")

	assert.Equal(t, kind.NotFound, classifyErr(notFound))
	assert.Equal(t, kind.PermissionDenied, classifyErr(denied))
	assert.Equal(t, kind.Other, classifyErr(other))
}

func TestWrapErrClassifiesAndFormats(t *testing.T) {
	cause := &os.PathError{Op: "stat", Path: "/tmp/gone", Err: os.ErrNotExist}
	err := wrapErr(cause, "distantapi: stat %q: %v", "/tmp/gone", cause)

	assert.Equal(t, kind.NotFound, kind.KindOf(err))
	assert.ErrorIs(t, err, cause)
}
