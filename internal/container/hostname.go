package container

import (
	"crypto/rand"
	"math/big"

	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
)

// hostnameAlphabet excludes easily-confused characters (0, 1, i, l, o)
// per §4.3: "[23456789a-z] minus easily-confused letters".
const hostnameAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const hostnameLength = 6

// GenerateHostname returns a fresh 6-character hostname, rejection-sampled
// against existing to avoid a collision (§4.3). existing is the set of
// mount-directory names already on disk.
func GenerateHostname(existing []string) (string, error) {
	taken := make(map[string]struct{}, len(existing))
	for _, h := range existing {
		taken[h] = struct{}{}
	}

	const maxAttempts = 100
	for attempt := 0; attempt < maxAttempts; attempt++ {
		h, err := randomHostname()
		if err != nil {
			return "", err
		}
		if _, collide := taken[h]; !collide {
			return h, nil
		}
	}
	return "", gatewayerr.New(gatewayerr.KindEngineInconsistent, "failed to generate a unique hostname after many attempts")
}

func randomHostname() (string, error) {
	buf := make([]byte, hostnameLength)
	n := big.NewInt(int64(len(hostnameAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", gatewayerr.Wrap(gatewayerr.KindEngineFailure, "generate random hostname", err)
		}
		buf[i] = hostnameAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
