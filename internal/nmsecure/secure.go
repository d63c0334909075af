// Package nmsecure implements the secure-memory container of §5 ("Secure
// memory"): pack decryption keys are held here rather than as bare []byte,
// so a key never survives a heap dump or a careless log line. Locking pages
// and zeroing on drop are both best-effort: the container logs failures via
// go.uber.org/zap rather than treating them as fatal, since a developer
// machine without CAP_IPC_LOCK must still be able to run the game.
package nmsecure

import (
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Bytes is a secure-memory container for sensitive byte material (AES keys,
// RSA key material). Its contents are only reachable through Borrow; callers
// must not retain the slice past the callback's return.
type Bytes struct {
	mu     sync.Mutex
	data   []byte
	locked bool
	freed  bool
	logger *zap.Logger
}

// New copies src into a freshly allocated, page-locked (best effort) buffer.
// The caller remains responsible for zeroing src itself if it came from an
// untrusted transient source (e.g. a decoded hex string).
func New(src []byte, logger *zap.Logger) *Bytes {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bytes{data: make([]byte, len(src)), logger: logger}
	copy(b.data, src)
	if err := syscall.Mlock(b.data); err != nil {
		logger.Debug("nmsecure: mlock failed, continuing without page lock", zap.Error(err))
	} else {
		b.locked = true
	}
	return b
}

// Len reports the byte length without exposing the contents.
func (b *Bytes) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Borrow invokes fn with the raw contents. fn must not retain the slice
// after returning: Drop or a concurrent zero can invalidate it.
func (b *Bytes) Borrow(fn func([]byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		fn(nil)
		return
	}
	fn(b.data)
}

// Drop zeroes the buffer (via a loop the compiler cannot prove dead, so it
// survives dead-store elimination) and releases the page lock if held.
func (b *Bytes) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return
	}
	zero(b.data)
	if b.locked {
		if err := syscall.Munlock(b.data); err != nil {
			b.logger.Debug("nmsecure: munlock failed", zap.Error(err))
		}
	}
	b.freed = true
}

//go:noinline
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
