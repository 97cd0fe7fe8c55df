// Package container implements the Container Service (C3): stateless
// operations on a single container — create-or-replace, assign-to-user,
// purge, checkpoint, restore, and metadata read/write. Grounded on the
// original's src/container/container.py and src/container/service.py.
package container

import (
	"fmt"
	"strings"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
)

// UnassignedUserID is the sentinel user_id standby containers carry in
// their name, "UNASSIGNED-{hostname}".
const UnassignedUserID = "UNASSIGNED"

// Identity is a value object classifying a container by its owning user,
// derived purely from the container's name/hostname (§3: ContainerIdentity).
type Identity struct {
	Hostname string
	UserID   string
	User     *auth.User // nil for standby
}

// ContainerName returns "{user_id}-{hostname}".
func (i Identity) ContainerName() string {
	return fmt.Sprintf("%s-%s", i.UserID, i.Hostname)
}

// IsStandby reports whether this is an UNASSIGNED container.
func (i Identity) IsStandby() bool {
	return i.UserID == UnassignedUserID
}

// IsAssignedToAuthenticatedUser reports whether this container is assigned
// to any user at all (persistent or one-time), i.e. not standby.
func (i Identity) IsAssignedToAuthenticatedUser() bool {
	return !i.IsStandby()
}

// IsAssignedToPersistentUser reports whether this container belongs to a
// user whose container should be checkpointed (not purged) on expiry.
func (i Identity) IsAssignedToPersistentUser() bool {
	return i.User != nil && i.User.IsPersistent()
}

// IsAssignedToGetgatherApp reports whether this container belongs to a
// one-time getgather app user, whose container is purged (not checkpointed)
// on expiry.
func (i Identity) IsAssignedToGetgatherApp() bool {
	return i.User != nil && !i.User.IsPersistent()
}

// IdentityFromHostname derives an Identity for hostname by reading its
// persisted metadata. A container with no metadata file is standby.
func IdentityFromHostname(store MetadataStore, hostname string) (Identity, error) {
	meta, err := store.Read(hostname)
	if err != nil {
		return Identity{}, err
	}
	if meta == nil {
		return Identity{Hostname: hostname, UserID: UnassignedUserID}, nil
	}
	u := meta.User
	return Identity{Hostname: hostname, UserID: u.UserID(), User: &u}, nil
}

// NameFor builds the container name for a container hostname that belongs
// to user (or standby, if user is nil).
func NameFor(hostname string, user *auth.User) string {
	if user == nil {
		return fmt.Sprintf("%s-%s", UnassignedUserID, hostname)
	}
	return fmt.Sprintf("%s-%s", user.UserID(), hostname)
}

// HostnameFromName extracts the trailing "-{hostname}" segment of a
// container name of the form "{user_id}-{hostname}".
func HostnameFromName(name string) (string, bool) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	return name[idx+1:], true
}
