package webproxy

import "fmt"

type errInvalidLinkID string

func (e errInvalidLinkID) Error() string { return fmt.Sprintf("invalid link id: %q", string(e)) }

type errNoWorkerForHostname string

func (e errNoWorkerForHostname) Error() string {
	return fmt.Sprintf("no worker found for hostname %q", string(e))
}
