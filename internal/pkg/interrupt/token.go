// Package interrupt provides a broadcast, one-shot cancellation token.
// Every long wait in the robot and the signal resolver registers with a
// token so a shutdown request unblocks it promptly instead of after the
// next timer fires.
package interrupt

import (
	"errors"
	"sync"
	"time"
)

// ErrInterrupted reports that a wait ended because the token was
// cancelled, not because its duration elapsed.
var ErrInterrupted = errors.New("interrupted")

type callback struct {
	id int64
	fn func()
}

// Token is a broadcast cancellation primitive. Cancel invokes every
// registered callback exactly once, in registration order, then clears
// the registry. Reset re-arms a cancelled token.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	nextID    int64
	callbacks []callback
}

func NewToken() *Token {
	return &Token{}
}

// OnCancel registers fn to run on Cancel and returns an unsubscribe
// function. If the token is already cancelled, fn runs immediately and
// the returned unsubscribe is a no-op.
func (t *Token) OnCancel(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	t.nextID++
	id := t.nextID
	t.callbacks = append(t.callbacks, callback{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, cb := range t.callbacks {
			if cb.id == id {
				t.callbacks = append(t.callbacks[:i], t.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Cancel fires all registered callbacks in registration order and
// clears the registry. Subsequent Cancel calls are no-ops until Reset.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	fired := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range fired {
		cb.fn()
	}
}

// Reset re-arms the token so it can be cancelled again. Pending
// callbacks registered before Reset are discarded.
func (t *Token) Reset() {
	t.mu.Lock()
	t.cancelled = false
	t.callbacks = nil
	t.mu.Unlock()
}

// Cancelled reports whether Cancel has been called since the last Reset.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Sleep blocks for d or until the token is cancelled, whichever comes
// first. It returns nil when the duration elapsed and ErrInterrupted
// when the token fired, so callers can tell a natural wake-up from a
// stop request.
func (t *Token) Sleep(d time.Duration) error {
	if d <= 0 {
		if t.Cancelled() {
			return ErrInterrupted
		}
		return nil
	}

	woke := make(chan struct{})
	var once sync.Once
	unsubscribe := t.OnCancel(func() {
		once.Do(func() { close(woke) })
	})
	defer unsubscribe()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-woke:
		return ErrInterrupted
	}
}
