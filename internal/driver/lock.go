// internal/driver/lock.go
package driver

import (
	"context"
)

// deviceLock serializes command execution on one device. Ownership travels
// in the context, so a holder may call back into Send without deadlocking.
// A context that holds the lock must not be shared with other goroutines.
type deviceLock struct {
	sem chan struct{}
}

type lockKey struct {
	lock *deviceLock
}

func newDeviceLock() *deviceLock {
	return &deviceLock{sem: make(chan struct{}, 1)}
}

// acquire returns a context marked as holding the lock and the func that
// releases it. Re-acquiring through a marked context is a no-op.
func (l *deviceLock) acquire(ctx context.Context) (context.Context, func(), error) {
	if l.heldBy(ctx) {
		return ctx, func() {}, nil
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, func() {}, ctx.Err()
	}

	released := false
	return context.WithValue(ctx, lockKey{l}, true), func() {
		if !released {
			released = true
			<-l.sem
		}
	}, nil
}

func (l *deviceLock) heldBy(ctx context.Context) bool {
	held, _ := ctx.Value(lockKey{l}).(bool)
	return held
}

// detach returns ctx without lock ownership, for work that outlives the holder
func (l *deviceLock) detach(ctx context.Context) context.Context {
	if !l.heldBy(ctx) {
		return ctx
	}
	return context.WithValue(ctx, lockKey{l}, false)
}
