// Package pipe is an in-process transport. Every envelope is JSON round-tripped so
// payloads behave as they would over a socket.
package pipe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"quizroom/internal/domain"
	"quizroom/internal/protocol"
	"quizroom/internal/transport"
)

const queueSize = 64

// Network routes dials to listeners by address.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*listener
	seq       int
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*listener)}
}

// Listen binds addr until the returned listener is closed.
func (n *Network) Listen(addr string) (transport.Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[addr]; ok {
		return nil, fmt.Errorf("listen %s: %w", addr, transport.ErrAddressInUse)
	}
	l := &listener{
		net:      n,
		addr:     addr,
		incoming: make(chan transport.Channel, queueSize),
	}
	n.listeners[addr] = l
	return l, nil
}

// Dial connects to the listener bound at addr.
func (n *Network) Dial(ctx context.Context, addr string) (transport.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	l, ok := n.listeners[addr]
	n.seq++
	id := "pipe-" + strconv.Itoa(n.seq)
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %s: %w", addr, domain.ErrRoomNotFound)
	}

	client := newEndpoint(addr)
	server := newEndpoint(id)
	client.peer, server.peer = server, client

	if err := l.offer(server); err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return client, nil
}

type listener struct {
	net      *Network
	addr     string
	mu       sync.Mutex
	closed   bool
	incoming chan transport.Channel
}

func (l *listener) Addr() string { return l.addr }
func (l *listener) Incoming() <-chan transport.Channel { return l.incoming }

func (l *listener) offer(ch transport.Channel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return domain.ErrRoomNotFound
	}
	select {
	case l.incoming <- ch:
		return nil
	default:
		return transport.ErrBackpressure
	}
}

func (l *listener) Close() error {
	l.net.mu.Lock()
	if l.net.listeners[l.addr] == l {
		delete(l.net.listeners, l.addr)
	}
	l.net.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.incoming)
	}
	return nil
}

type endpoint struct {
	id     string
	peer   *endpoint
	mu     sync.Mutex
	closed bool
	in     chan protocol.Envelope
}

func newEndpoint(id string) *endpoint {
	return &endpoint{id: id, in: make(chan protocol.Envelope, queueSize)}
}

func (e *endpoint) ID() string { return e.id }
func (e *endpoint) Inbound() <-chan protocol.Envelope { return e.in }

func (e *endpoint) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var wire protocol.Envelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	p := e.peer
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	select {
	case p.in <- wire:
		return nil
	default:
		return transport.ErrBackpressure
	}
}

// Close shuts both directions; the peer observes its Inbound channel closing.
func (e *endpoint) Close() error {
	e.shutdown()
	e.peer.shutdown()
	return nil
}

func (e *endpoint) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.in)
	}
}
