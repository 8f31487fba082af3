package uuidv7utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUUID7(t *testing.T) {
	a := UUID7()
	assert.Equal(t, uuid.Version(7), a.Version())

	ts := GetTimestampFromUUID(a)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestUUID7Ordering(t *testing.T) {
	a := UUID7()
	time.Sleep(2 * time.Millisecond)
	b := UUID7()

	assert.Equal(t, -1, CompareUUIDv7(a, b))
	assert.Equal(t, 1, CompareUUIDv7(b, a))
	assert.Equal(t, 0, CompareUUIDv7(a, a))
	assert.True(t, IsBefore(a, b))
	assert.False(t, IsBefore(b, a))
}
