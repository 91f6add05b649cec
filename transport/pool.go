package transport

import (
	"context"
	"fmt"
	"sync"
)

// Pool hands out independent connections to the same dedicated server, for
// callers that need parallel exchanges. A ClientTransport allows one
// exchange at a time; a Pool lets each goroutine borrow its own.
//
// The pool is a buffered channel used as a FIFO queue. Connections are
// created lazily, up to maxConns.
type Pool struct {
	mu       sync.Mutex
	conns    chan *ClientTransport
	maxConns int
	curConns int
	closed   bool
	factory  func(ctx context.Context) (*ClientTransport, error)
}

// NewPool creates a pool of at most maxConns connections to addr.
func NewPool(addr string, maxConns int, opts Options) *Pool {
	return NewPoolWithFactory(maxConns, func(ctx context.Context) (*ClientTransport, error) {
		return Dial(ctx, addr, opts)
	})
}

// NewPoolWithFactory creates a pool that opens connections with factory.
func NewPoolWithFactory(maxConns int, factory func(ctx context.Context) (*ClientTransport, error)) *Pool {
	return &Pool{
		conns:    make(chan *ClientTransport, maxConns),
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get borrows a connection:
//  1. an idle connection from the queue, skipping dead ones
//  2. a new connection while under the limit
//  3. otherwise wait for a connection to be returned, or ctx to end
func (p *Pool) Get(ctx context.Context) (*ClientTransport, error) {
	for {
		select {
		case t, ok := <-p.conns:
			if !ok {
				return nil, fmt.Errorf("gbxremote: pool closed")
			}
			if t.IsConnected() {
				return t, nil
			}
			p.release()
			continue
		default:
		}

		t, created, err := p.createNew(ctx)
		if created || err != nil {
			return t, err
		}

		select {
		case t, ok := <-p.conns:
			if !ok {
				return nil, fmt.Errorf("gbxremote: pool closed")
			}
			if t.IsConnected() {
				return t, nil
			}
			p.release()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a connection. Dead connections are discarded and free a slot.
func (p *Pool) Put(t *ClientTransport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !t.IsConnected() {
		t.Close()
		p.curConns--
		return
	}
	// Never blocks: at most maxConns connections exist.
	p.conns <- t
}

// Size returns the number of open connections, idle or borrowed.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curConns
}

// Close shuts the pool down and closes the idle connections. Borrowed
// connections are closed when they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.conns)
	for t := range p.conns {
		t.Close()
		p.curConns--
	}
	return nil
}

func (p *Pool) release() {
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
}

// createNew opens a connection if the pool is below its limit. created is
// false when the pool is full.
func (p *Pool) createNew(ctx context.Context) (*ClientTransport, bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, fmt.Errorf("gbxremote: pool closed")
	}
	if p.curConns >= p.maxConns {
		p.mu.Unlock()
		return nil, false, nil
	}
	p.curConns++
	p.mu.Unlock()

	t, err := p.factory(ctx)
	if err != nil {
		p.release()
		return nil, false, err
	}
	return t, true, nil
}
