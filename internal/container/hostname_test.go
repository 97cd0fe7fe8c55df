package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostnameFromNameExtractsTrailingSegment(t *testing.T) {
	hostname, ok := HostnameFromName("42.github-abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", hostname)
}

func TestHostnameFromNameStandby(t *testing.T) {
	hostname, ok := HostnameFromName("UNASSIGNED-xyz789")
	require.True(t, ok)
	assert.Equal(t, "xyz789", hostname)
}

func TestHostnameFromNameNoDashIsInvalid(t *testing.T) {
	_, ok := HostnameFromName("nodashatall")
	assert.False(t, ok)
}

func TestHostnameFromNameTrailingDashIsInvalid(t *testing.T) {
	_, ok := HostnameFromName("user-")
	assert.False(t, ok)
}

func TestGenerateHostnameUsesOnlyUnambiguousAlphabet(t *testing.T) {
	h, err := GenerateHostname(nil)
	require.NoError(t, err)
	assert.Len(t, h, hostnameLength)
	for _, c := range h {
		assert.Contains(t, hostnameAlphabet, string(c))
	}
}

func TestGenerateHostnameAvoidsCollisions(t *testing.T) {
	h, err := GenerateHostname(nil)
	require.NoError(t, err)

	h2, err := GenerateHostname([]string{h})
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
}
