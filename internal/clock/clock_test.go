package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEpoch(t *testing.T) {
	c := &Fixed{T: time.Unix(3*86400+5, 0), EpochLength: 24 * time.Hour}
	assert.Equal(t, uint64(3), c.Epoch(c.Now()))

	c.Advance(86400 * time.Second)
	assert.Equal(t, uint64(4), c.Epoch(c.Now()))

	c.Advance(-time.Hour)
	assert.Equal(t, uint64(4), c.Epoch(c.Now()))
}

func TestEpochDefaults(t *testing.T) {
	s := New(0)
	assert.Equal(t, uint64(1), s.Epoch(time.Unix(86400, 0)))
	assert.Equal(t, uint64(0), s.Epoch(time.Unix(-5, 0)))
	assert.Equal(t, uint64(7), New(time.Millisecond).Epoch(time.Unix(7, 0)))
}
