package repository

import (
	"sync"

	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

type result struct {
	resp gtp.Response
	err  error
}

type waiter struct {
	id uint64
	ch chan result
}

// Correlator hands a completed response from the reader goroutine to the one
// caller blocked on it. Responses are numbered in arrival order; GTP answers
// commands strictly in order, so response N belongs to command N.
type Correlator struct {
	mu   sync.Mutex
	next uint64
	slot *waiter
	err  error
}

func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Expect claims the slot for the response to command id. It must be called
// before the command is written.
func (c *Correlator) Expect(id uint64) (<-chan result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if c.slot != nil {
		return nil, errs.ErrCorrelatorBusy
	}
	ch := make(chan result, 1)
	c.slot = &waiter{id: id, ch: ch}
	return ch, nil
}

// Abandon releases the slot if it is still held for id. A response that
// arrives later for id is discarded.
func (c *Correlator) Abandon(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slot != nil && c.slot.id == id {
		c.slot = nil
	}
}

// Deliver numbers resp and wakes its waiter. It reports false when nobody was
// waiting for it.
func (c *Correlator) Deliver(resp gtp.Response) (gtp.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp.ID = c.next
	c.next++
	if c.slot == nil || c.slot.id != resp.ID {
		return resp, false
	}
	c.slot.ch <- result{resp: resp}
	c.slot = nil
	return resp, true
}

// Close fails the current waiter and every later Expect with err.
func (c *Correlator) Close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		c.err = err
	}
	if c.slot != nil {
		c.slot.ch <- result{err: c.err}
		c.slot = nil
	}
}
