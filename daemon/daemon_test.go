package daemon

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/ufo-kit/uca-net/camera"
	"github.com/ufo-kit/uca-net/wire"
)

// startDaemon spins up a Daemon on a loopback listener, in the style of
// comm_test.go's tcpEchoServer: a real TCP server running in-process for
// the test to dial.
func startDaemon(t *testing.T, cam camera.Driver) (addr string, closeFn func()) {
	t.Helper()
	ctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	d := New(cam, ctx)
	go d.Serve(ln)
	return ln.Addr().String(), func() {
		ln.Close()
		ctx.Term()
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestPropertyRoundTrip(t *testing.T) {
	cam := camera.NewSim("")
	addr, closeFn := startDaemon(t, cam)
	defer closeFn()

	conn := dial(t, addr)
	defer conn.Close()

	if err := wire.EncodeSetPropertyRequest(conn, wire.SetPropertyRequest{Name: "exposure-time", Value: "2.5"}); err != nil {
		t.Fatalf("EncodeSetPropertyRequest: %v", err)
	}
	setReply, err := wire.DecodeDefaultReply(conn)
	if err != nil {
		t.Fatalf("DecodeDefaultReply: %v", err)
	}
	if setReply.Error.Occurred {
		t.Fatalf("SetProperty failed: %+v", setReply.Error)
	}

	if err := wire.EncodeGetPropertyRequest(conn, wire.GetPropertyRequest{Name: "exposure-time"}); err != nil {
		t.Fatalf("EncodeGetPropertyRequest: %v", err)
	}
	typ, reply, err := wire.DecodeGetPropertyReply(conn)
	if err != nil {
		t.Fatalf("DecodeGetPropertyReply: %v", err)
	}
	if typ != wire.GetProperty {
		t.Fatalf("got reply type %s", typ)
	}
	if reply.PropertyValue != "2.5" {
		t.Fatalf("got %q, want %q", reply.PropertyValue, "2.5")
	}
}

func TestGrabHappyPath(t *testing.T) {
	cam := camera.NewSim("")
	cam.SetProperty("roi-width", "4")
	cam.SetProperty("roi-height", "2")
	cam.SetProperty("sensor-bitdepth", "16")
	addr, closeFn := startDaemon(t, cam)
	defer closeFn()

	conn := dial(t, addr)
	defer conn.Close()

	size, _ := cam.FrameSize()
	if err := wire.EncodeGrabRequest(conn, int32(size)); err != nil {
		t.Fatalf("EncodeGrabRequest: %v", err)
	}
	reply, err := wire.DecodeDefaultReply(conn)
	if err != nil {
		t.Fatalf("DecodeDefaultReply: %v", err)
	}
	if reply.Error.Occurred {
		t.Fatalf("Grab failed: %+v", reply.Error)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read grab payload: %v", err)
	}
	if len(buf) != size {
		t.Fatalf("got %d bytes, want %d", len(buf), size)
	}
}

type failingCamera struct {
	camera.Driver
}

func (f failingCamera) Grab(buf []byte) error {
	return fmt.Errorf("dark")
}

func TestGrabFailure(t *testing.T) {
	cam := failingCamera{Driver: camera.NewSim("")}
	addr, closeFn := startDaemon(t, cam)
	defer closeFn()

	conn := dial(t, addr)
	defer conn.Close()

	if err := wire.EncodeGrabRequest(conn, 16); err != nil {
		t.Fatalf("EncodeGrabRequest: %v", err)
	}
	reply, err := wire.DecodeDefaultReply(conn)
	if err != nil {
		t.Fatalf("DecodeDefaultReply: %v", err)
	}
	if !reply.Error.Occurred {
		t.Fatal("expected grab error")
	}

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	probe := make([]byte, 1)
	if _, err := conn.Read(probe); err == nil {
		t.Fatal("expected no payload bytes after a failed grab")
	}
}

func TestDuplicateAddEndpointRejected(t *testing.T) {
	cam := camera.NewSim("")
	addr, closeFn := startDaemon(t, cam)
	defer closeFn()

	conn := dial(t, addr)
	defer conn.Close()

	req := wire.ZmqAddEndpointRequest{Endpoint: "inproc://dup-test", SocketType: 0, HWM: 10}
	if err := wire.EncodeZmqAddEndpointRequest(conn, req); err != nil {
		t.Fatalf("EncodeZmqAddEndpointRequest: %v", err)
	}
	first, err := wire.DecodeDefaultReply(conn)
	if err != nil {
		t.Fatalf("DecodeDefaultReply: %v", err)
	}
	if first.Error.Occurred {
		t.Fatalf("first add failed: %+v", first.Error)
	}

	if err := wire.EncodeZmqAddEndpointRequest(conn, req); err != nil {
		t.Fatalf("EncodeZmqAddEndpointRequest: %v", err)
	}
	second, err := wire.DecodeDefaultReply(conn)
	if err != nil {
		t.Fatalf("DecodeDefaultReply: %v", err)
	}
	if !second.Error.Occurred {
		t.Fatal("expected second add to fail")
	}
}
