package nmsecure_test

import (
	"testing"

	"github.com/novelmind/novelmind/internal/nmsecure"
	"github.com/stretchr/testify/assert"
)

func TestBytesBorrowSeesContents(t *testing.T) {
	b := nmsecure.New([]byte("super-secret-key"), nil)
	defer b.Drop()

	var got []byte
	b.Borrow(func(data []byte) {
		got = append(got, data...)
	})
	assert.Equal(t, "super-secret-key", string(got))
	assert.Equal(t, 16, b.Len())
}

func TestBytesDropZeroesAndDisablesBorrow(t *testing.T) {
	b := nmsecure.New([]byte("another-secret"), nil)
	b.Drop()

	var called bool
	b.Borrow(func(data []byte) {
		called = true
		assert.Nil(t, data)
	})
	assert.True(t, called)

	// Drop is idempotent.
	assert.NotPanics(t, func() { b.Drop() })
}
