// Package registry implements the endpoint registry (§3, §4.6): the
// mapping from endpoint-string to the ZeroMQ socket streamed frames are
// published on. Add/remove are always called with the access
// serializer already held by the caller (§4.4), as is the Snapshot taken
// by a starting Push, so the registry's own mutex only protects against
// readers that do not take the serializer, such as the admin surface's
// /endpoints handler.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	zmq "github.com/pebbe/zmq4"
)

// SocketType selects the ZeroMQ socket kind bound for an endpoint, set
// per §4.6 ("type ... from the request").
type SocketType int32

const (
	PUB SocketType = iota
	PUSH
)

func (t SocketType) zmqType() zmq.Type {
	if t == PUSH {
		return zmq.PUSH
	}
	return zmq.PUB
}

// ErrInvalidEndpoint is returned by Add for a duplicate endpoint string
// and by Remove for one that is not registered (§4.6, Scenario S6).
var ErrInvalidEndpoint = errors.New("registry: invalid endpoint")

// Node is one registered endpoint's long-lived state: the bound socket
// and the configuration used to create it. The per-stream data/feedback
// queues and sender goroutine described in §3 are created fresh by the
// stream engine for the lifetime of a single Push call, since a Node
// only ever has an active sender while some Push call holds the access
// serializer (§4.4) — by the time Remove can run, no Push is in
// progress and there is nothing left to join.
type Node struct {
	Endpoint   string
	SocketType SocketType
	HWM        int
	Socket     *zmq.Socket
}

// Registry is the process's endpoint table.
type Registry struct {
	ctx   *zmq.Context
	mu    sync.Mutex
	nodes map[string]*Node
}

// New returns an empty Registry using the given ZeroMQ context.
func New(ctx *zmq.Context) *Registry {
	return &Registry{ctx: ctx, nodes: make(map[string]*Node)}
}

// Add binds a new endpoint and registers it. It fails with
// ErrInvalidEndpoint if endpoint is already registered.
func (r *Registry) Add(endpoint string, socketType SocketType, hwm int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[endpoint]; ok {
		return ErrInvalidEndpoint
	}
	sock, err := r.ctx.NewSocket(socketType.zmqType())
	if err != nil {
		return fmt.Errorf("registry: new socket: %w", err)
	}
	if err := sock.SetSndhwm(hwm); err != nil {
		sock.Close()
		return fmt.Errorf("registry: set HWM: %w", err)
	}
	if err := sock.Bind(endpoint); err != nil {
		sock.Close()
		return fmt.Errorf("registry: bind %s: %w", endpoint, err)
	}
	r.nodes[endpoint] = &Node{Endpoint: endpoint, SocketType: socketType, HWM: hwm, Socket: sock}
	return nil
}

// Remove unbinds and drops endpoint. It fails with ErrInvalidEndpoint if
// endpoint is not registered.
func (r *Registry) Remove(endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[endpoint]
	if !ok {
		return ErrInvalidEndpoint
	}
	delete(r.nodes, endpoint)
	return node.Socket.Close()
}

// Snapshot returns the currently-registered nodes in a stable order, for
// the stream engine to spawn sender tasks against at the start of a
// Push call (§4.5: "Spawns a task per currently-registered endpoint").
func (r *Registry) Snapshot() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// Len reports the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}
