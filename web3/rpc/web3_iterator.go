package rpc

import (
	"fmt"
	"sync"
)

// Web3Iterator iterates in round robin over the available endpoints of a
// chain. Disabled endpoints are skipped until every endpoint is disabled, then
// all of them are enabled again.
type Web3Iterator struct {
	mu        sync.Mutex
	available []*Web3Endpoint
	disabled  []*Web3Endpoint
	next      int
}

// NewWeb3Iterator creates an iterator with the given endpoints available.
func NewWeb3Iterator(endpoints ...*Web3Endpoint) *Web3Iterator {
	return &Web3Iterator{available: endpoints}
}

// Add appends an endpoint as available.
func (w *Web3Iterator) Add(endpoints ...*Web3Endpoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.available = append(w.available, endpoints...)
}

// Next returns the next available endpoint.
func (w *Web3Iterator) Next() (*Web3Endpoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.available) == 0 {
		if len(w.disabled) == 0 {
			return nil, fmt.Errorf("no endpoints")
		}
		// every endpoint failed, give them all another chance
		w.available, w.disabled = w.disabled, nil
		w.next = 0
	}
	if w.next >= len(w.available) {
		w.next = 0
	}
	e := w.available[w.next]
	w.next++
	return e, nil
}

// Disable moves the endpoint with the given URI to the disabled list.
func (w *Web3Iterator) Disable(uri string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, e := range w.available {
		if e.URI == uri {
			w.available = append(w.available[:i], w.available[i+1:]...)
			w.disabled = append(w.disabled, e)
			if w.next > i {
				w.next--
			}
			return
		}
	}
}

// Available returns the number of available endpoints.
func (w *Web3Iterator) Available() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.available)
}

// Disabled returns the number of disabled endpoints.
func (w *Web3Iterator) Disabled() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.disabled)
}

func (w *Web3Iterator) each(fn func(*Web3Endpoint)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.available {
		fn(e)
	}
	for _, e := range w.disabled {
		fn(e)
	}
}
