package file

import (
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomAlphanumeric(t *testing.T) {
	for _, n := range []int{1, 8, 64} {
		s, err := randomAlphanumeric(n)
		require.NoError(t, err)
		assert.Len(t, s, n)
		for _, c := range s {
			assert.True(t, strings.ContainsRune(alphanumeric, c), "unexpected rune %q", c)
		}
	}
}

func TestRandomAlphanumeric_InvalidLength(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := randomAlphanumeric(n)
		assert.Error(t, err)
	}
}

func TestRandomToken(t *testing.T) {
	a, err := randomToken()
	require.NoError(t, err)
	b, err := randomToken()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	_, err = hex.DecodeString(a)
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewIdentifiers_InvalidLength(t *testing.T) {
	_, err := newIdentifiers(0)
	assert.ErrorContains(t, err, "public id")
}

func TestMillisClock_NeverGoesBackwards(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	times := []time.Time{base, base.Add(-time.Hour), base.Add(5 * time.Millisecond), base.Add(-time.Second)}
	i := 0
	c := &millisClock{now: func() time.Time {
		tm := times[i]
		i++
		return tm
	}}

	assert.Equal(t, base.UnixMilli(), c.nowMillis())
	assert.Equal(t, base.UnixMilli(), c.nowMillis())
	assert.Equal(t, base.UnixMilli()+5, c.nowMillis())
	assert.Equal(t, base.UnixMilli()+5, c.nowMillis())
}

func TestMillisClock_Concurrent(t *testing.T) {
	c := &millisClock{now: time.Now}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for i := 0; i < 1000; i++ {
				ms := c.nowMillis()
				if ms < last {
					t.Errorf("clock went backwards: %d < %d", ms, last)
					return
				}
				last = ms
			}
		}()
	}
	wg.Wait()
}
