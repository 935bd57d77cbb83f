package kind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStringRoundTrip(t *testing.T) {
	tests := []struct {
		k    Kind
		wire string
	}{
		{Other, "other"},
		{NotFound, "not_found"},
		{PermissionDenied, "permission_denied"},
		{BrokenPipe, "broken_pipe"},
		{InvalidData, "invalid_data"},
		{UnexpectedEOF, "unexpected_eof"},
		{Unsupported, "unsupported"},
		{Interrupted, "interrupted"},
	}
	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			assert.Equal(t, tt.wire, tt.k.String())
			assert.Equal(t, tt.k, ParseKind(tt.wire))
		})
	}
}

func TestParseKindDefaultsToOther(t *testing.T) {
	assert.Equal(t, Other, ParseKind("something_unrecognized"))
}

func TestNewCarriesDescriptionAndKind(t *testing.T) {
	err := New(NotFound, "no such file %q", "/tmp/x")
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, `no such file "/tmp/x"`, err.Error())
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("permission denied by sshd")
	err := Wrap(cause, PermissionDenied, "chmod %q: %v", "/etc/passwd", cause)

	assert.Equal(t, PermissionDenied, KindOf(err))
	require.ErrorIs(t, err, cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestIsMatchesByKindNotByCause(t *testing.T) {
	err := Wrap(errors.New("boom"), BrokenPipe, "pipe broke")
	assert.True(t, errors.Is(err, Of(BrokenPipe)))
	assert.False(t, errors.Is(err, Of(NotFound)))
}

func TestKindOfDefaultsToOtherForPlainErrors(t *testing.T) {
	assert.Equal(t, Other, KindOf(fmt.Errorf("not a kind.Error")))
	assert.Equal(t, Other, KindOf(nil))
}
