package surface

import (
	"context"
	"errors"
	"fmt"
)

var ErrPoolClosed = errors.New("surface pool is closed")

// Pool recycles idle providers. It grows lazily and, with MaxIdle zero, never
// shrinks. Pool is not safe for concurrent use; the multiplexer loop owns it.
type Pool struct {
	factory Factory
	idle    []Provider
	maxIdle int
	created int
	closed  bool
}

// NewPool creates an empty pool. maxIdle caps the free list; zero means
// unbounded.
func NewPool(factory Factory, maxIdle int) *Pool {
	return &Pool{factory: factory, maxIdle: maxIdle}
}

// Acquire returns the most recently released provider, or constructs a new
// one when the free list is empty.
func (p *Pool) Acquire(ctx context.Context) (Provider, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		prov := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		return prov, nil
	}

	prov, err := p.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct provider: %w", err)
	}
	p.created++
	return prov, nil
}

// Release returns a reset provider to the free list. Providers beyond the
// idle cap, or released after Close, are closed instead.
func (p *Pool) Release(prov Provider) error {
	if p.closed || (p.maxIdle > 0 && len(p.idle) >= p.maxIdle) {
		return prov.Close()
	}
	p.idle = append(p.idle, prov)
	return nil
}

// Len returns the number of idle providers.
func (p *Pool) Len() int {
	return len(p.idle)
}

// Created returns how many providers the pool has constructed.
func (p *Pool) Created() int {
	return p.created
}

// Close closes every idle provider. Later releases close their provider.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, prov := range p.idle {
		if err := prov.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.idle = nil
	return errors.Join(errs...)
}
