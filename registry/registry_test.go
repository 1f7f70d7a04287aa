package registry_test

import (
	"errors"
	"testing"

	zmq "github.com/pebbe/zmq4"

	"github.com/ufo-kit/uca-net/registry"
)

func newContext(t *testing.T) *zmq.Context {
	t.Helper()
	ctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	return ctx
}

func TestAddRemoveRoundTrip(t *testing.T) {
	ctx := newContext(t)
	defer ctx.Term()
	r := registry.New(ctx)

	if err := r.Add("inproc://registry-test-1", registry.PUB, 10); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("got Len() = %d, want 1", r.Len())
	}

	nodes := r.Snapshot()
	if len(nodes) != 1 || nodes[0].Endpoint != "inproc://registry-test-1" {
		t.Fatalf("got %+v", nodes)
	}

	if err := r.Remove("inproc://registry-test-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("got Len() = %d, want 0 after Remove", r.Len())
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	ctx := newContext(t)
	defer ctx.Term()
	r := registry.New(ctx)

	if err := r.Add("inproc://registry-test-2", registry.PUB, 10); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := r.Add("inproc://registry-test-2", registry.PUB, 10)
	if !errors.Is(err, registry.ErrInvalidEndpoint) {
		t.Fatalf("got %v, want ErrInvalidEndpoint", err)
	}
}

func TestRemoveMissingRejected(t *testing.T) {
	ctx := newContext(t)
	defer ctx.Term()
	r := registry.New(ctx)

	err := r.Remove("inproc://does-not-exist")
	if !errors.Is(err, registry.ErrInvalidEndpoint) {
		t.Fatalf("got %v, want ErrInvalidEndpoint", err)
	}
}

func TestSnapshotIsSortedByEndpoint(t *testing.T) {
	ctx := newContext(t)
	defer ctx.Term()
	r := registry.New(ctx)

	if err := r.Add("inproc://b", registry.PUB, 1); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if err := r.Add("inproc://a", registry.PUSH, 1); err != nil {
		t.Fatalf("Add a: %v", err)
	}

	nodes := r.Snapshot()
	if len(nodes) != 2 || nodes[0].Endpoint != "inproc://a" || nodes[1].Endpoint != "inproc://b" {
		t.Fatalf("got %+v, want sorted [a b]", nodes)
	}
}
