package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
)

func TestIdentityFromHostnameStandbyWhenNoMetadata(t *testing.T) {
	store := MetadataStore{MountRoot: t.TempDir()}

	id, err := IdentityFromHostname(store, "abc123")
	require.NoError(t, err)
	assert.True(t, id.IsStandby())
	assert.Equal(t, UnassignedUserID, id.UserID)
	assert.Nil(t, id.User)
}

func TestIdentityFromHostnamePersistentUser(t *testing.T) {
	store := MetadataStore{MountRoot: t.TempDir()}
	user := auth.User{Sub: "42", AuthProvider: auth.ProviderGitHub}
	require.NoError(t, store.Write("abc123", Metadata{User: user}))

	id, err := IdentityFromHostname(store, "abc123")
	require.NoError(t, err)
	assert.False(t, id.IsStandby())
	assert.True(t, id.IsAssignedToAuthenticatedUser())
	assert.True(t, id.IsAssignedToPersistentUser())
	assert.False(t, id.IsAssignedToGetgatherApp())
	assert.Equal(t, user.UserID(), id.UserID)
}

func TestIdentityFromHostnameGetgatherAppUser(t *testing.T) {
	store := MetadataStore{MountRoot: t.TempDir()}
	user := auth.User{Sub: "app-1", AuthProvider: auth.ProviderGetgather}
	require.NoError(t, store.Write("xyz789", Metadata{User: user}))

	id, err := IdentityFromHostname(store, "xyz789")
	require.NoError(t, err)
	assert.True(t, id.IsAssignedToAuthenticatedUser())
	assert.False(t, id.IsAssignedToPersistentUser())
	assert.True(t, id.IsAssignedToGetgatherApp())
}

func TestNameForStandbyWhenUserNil(t *testing.T) {
	assert.Equal(t, "UNASSIGNED-abc123", NameFor("abc123", nil))
}

func TestNameForAssignedUser(t *testing.T) {
	user := &auth.User{Sub: "42", AuthProvider: auth.ProviderGoogle}
	assert.Equal(t, user.UserID()+"-abc123", NameFor("abc123", user))
}

func TestIdentityContainerNameMatchesNameFor(t *testing.T) {
	user := auth.User{Sub: "42", AuthProvider: auth.ProviderGitHub}
	id := Identity{Hostname: "abc123", UserID: user.UserID(), User: &user}
	assert.Equal(t, NameFor("abc123", &user), id.ContainerName())
}
