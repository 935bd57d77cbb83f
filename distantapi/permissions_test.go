package distantapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionsUnixModeRoundTrip(t *testing.T) {
	tests := []uint32{0o000, 0o644, 0o755, 0o600, 0o777}
	for _, mode := range tests {
		perm := PermissionsFromUnixMode(mode)
		assert.Equal(t, mode, perm.ToUnixMode())
	}
}

// TestApplyFromOverridesOnlySetTriples is the core regression for the
// set_permissions delta-merge semantics: a delta that only touches
// owner-write must leave every other triple exactly as it was on the
// current mode, never reset to zero.
func TestApplyFromOverridesOnlySetTriples(t *testing.T) {
	current := PermissionsFromUnixMode(0o644) // rw-r--r--

	delta := Permissions{OwnerWrite: boolPtr(false)} // clear owner write only
	merged := current.ApplyFrom(delta)

	assert.Equal(t, uint32(0o444), merged.ToUnixMode())
}

func TestApplyFromWithNoTriplesSetIsANoop(t *testing.T) {
	current := PermissionsFromUnixMode(0o750)
	merged := current.ApplyFrom(Permissions{})
	assert.Equal(t, uint32(0o750), merged.ToUnixMode())
}

func TestApplyFromFullOverrideMatchesDirectConstruction(t *testing.T) {
	current := PermissionsFromUnixMode(0o000)
	delta := PermissionsFromUnixMode(0o777)
	merged := current.ApplyFrom(delta)
	assert.Equal(t, uint32(0o777), merged.ToUnixMode())
}

func TestApplyFromSettingExecBitsLeavesReadWriteAlone(t *testing.T) {
	current := PermissionsFromUnixMode(0o600) // rw-------
	delta := Permissions{
		OwnerExec: boolPtr(true),
		GroupExec: boolPtr(true),
	}
	merged := current.ApplyFrom(delta)
	assert.Equal(t, uint32(0o710), merged.ToUnixMode())
}
