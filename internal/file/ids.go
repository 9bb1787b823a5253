package file

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// identifiers are the three independent ids minted for every upload.
type identifiers struct {
	publicID  string
	storageID string
	secret    string
}

// newIdentifiers draws a public id of the given length plus a storage id and
// secret of 32 hex characters each. Uniqueness is left to the database.
func newIdentifiers(publicIDLength int) (identifiers, error) {
	publicID, err := randomAlphanumeric(publicIDLength)
	if err != nil {
		return identifiers{}, fmt.Errorf("public id: %w", err)
	}
	storageID, err := randomToken()
	if err != nil {
		return identifiers{}, fmt.Errorf("storage id: %w", err)
	}
	secret, err := randomToken()
	if err != nil {
		return identifiers{}, fmt.Errorf("secret: %w", err)
	}
	return identifiers{publicID: publicID, storageID: storageID, secret: secret}, nil
}

// randomAlphanumeric returns n characters drawn uniformly from [A-Za-z0-9].
func randomAlphanumeric(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", n)
	}
	limit := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// randomToken returns a random v4 UUID without dashes.
func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// millisClock returns epoch milliseconds that never go backwards, even if
// the wall clock does.
type millisClock struct {
	now  func() time.Time
	last atomic.Int64
}

func (c *millisClock) nowMillis() int64 {
	ms := c.now().UnixMilli()
	for {
		last := c.last.Load()
		if ms <= last {
			return last
		}
		if c.last.CompareAndSwap(last, ms) {
			return ms
		}
	}
}
