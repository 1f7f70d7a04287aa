// Package daemon implements the connection handler (§4.3): per-connection
// receive loop, the dispatch table, and the wiring between the access
// serializer, the endpoint registry, and the streaming engine.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	zmq "github.com/pebbe/zmq4"

	"github.com/ufo-kit/uca-net/access"
	"github.com/ufo-kit/uca-net/camera"
	"github.com/ufo-kit/uca-net/registry"
	"github.com/ufo-kit/uca-net/stream"
	"github.com/ufo-kit/uca-net/wire"
)

// Daemon serves the wire protocol against a single camera.Driver (§2).
type Daemon struct {
	Camera   camera.Driver
	Access   *access.Serializer
	Registry *registry.Registry
	Stop     *stream.StopFlag

	grabBuf []byte
}

// New wires a Daemon around cam, binding any future streaming endpoints
// through zctx.
func New(cam camera.Driver, zctx *zmq.Context) *Daemon {
	return &Daemon{
		Camera:   cam,
		Access:   access.New(),
		Registry: registry.New(zctx),
		Stop:     &stream.StopFlag{},
	}
}

// Serve accepts connections on ln until it returns an error (typically
// from ln.Close on shutdown).
func (d *Daemon) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go d.handleConn(conn)
	}
}

// handleConn runs the Idle -> ReadHeader -> Dispatch -> Idle loop for
// one connection (§4.3), exiting on CloseConnection, a broken pipe, or
// any unhandled I/O failure.
func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr()

	for {
		msgType, err := wire.DecodeHeader(conn)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownType) {
				// §7 calls for logging an unknown type and continuing with
				// the next message. That assumes a framed stream where the
				// next message boundary is known; this wire format is read
				// field-by-field with no length prefix or resync marker
				// (§9), so once the type tag doesn't match a known message
				// there is no safe offset to resume reading from. Closing
				// here, rather than skipping, is the deliberate exception.
				log.Printf("daemon: %s: unknown message type, closing connection", addr)
				return
			}
			if !errors.Is(err, io.EOF) {
				log.Printf("daemon: %s: read header: %v", addr, err)
			}
			return
		}

		if msgType == wire.CloseConnection {
			return
		}

		if msgType == wire.StopPush {
			// The sole exemption from the access serializer (§4.4): accepted
			// even while Push holds it.
			d.Stop.Set()
			if err := wire.EncodeDefaultReply(conn, wire.StopPush, wire.NoError); err != nil {
				log.Printf("daemon: %s: reply StopPush: %v", addr, err)
				return
			}
			continue
		}

		if err := d.dispatch(conn, msgType); err != nil {
			log.Printf("daemon: %s: %v", addr, err)
			return
		}
	}
}

func (d *Daemon) dispatch(conn net.Conn, t wire.MessageType) error {
	d.Access.Lock()
	defer d.Access.Unlock()

	switch t {
	case wire.GetProperties:
		return d.handleGetProperties(conn)
	case wire.GetProperty:
		return d.handleGetProperty(conn)
	case wire.SetProperty:
		return d.handleSetProperty(conn)
	case wire.StartRecording:
		return d.handleSimple(conn, t, d.Camera.StartRecording)
	case wire.StopRecording:
		return d.handleSimple(conn, t, d.Camera.StopRecording)
	case wire.StartReadout:
		return d.handleSimple(conn, t, d.Camera.StartReadout)
	case wire.StopReadout:
		return d.handleSimple(conn, t, d.Camera.StopReadout)
	case wire.Trigger:
		return d.handleSimple(conn, t, d.Camera.Trigger)
	case wire.Grab:
		return d.handleGrab(conn)
	case wire.Write:
		return d.handleWrite(conn)
	case wire.Push:
		return d.handlePush(conn)
	case wire.ZmqAddEndpoint:
		return d.handleAddEndpoint(conn)
	case wire.ZmqRemoveEndpoint:
		return d.handleRemoveEndpoint(conn)
	default:
		log.Printf("daemon: unhandled message type %s", t)
		return nil
	}
}

func (d *Daemon) handleSimple(conn net.Conn, t wire.MessageType, op func() error) error {
	err := op()
	return wire.EncodeDefaultReply(conn, t, wire.ErrorFrom("camera", 1, err))
}

func (d *Daemon) handleGetProperties(conn net.Conn) error {
	props := d.Camera.ListProperties()
	base := d.Camera.NumBaseProperties()
	if base > len(props) {
		base = len(props)
	}
	exposed := props[base:]

	if err := wire.EncodeGetPropertiesReply(conn, int32(len(exposed))); err != nil {
		return fmt.Errorf("encode GetPropertiesReply: %w", err)
	}
	for _, p := range exposed {
		d := wire.FromCameraProperty(p)
		if err := d.Encode(conn); err != nil {
			return fmt.Errorf("encode descriptor %s: %w", p.Name, err)
		}
	}
	return nil
}

func (d *Daemon) handleGetProperty(conn net.Conn) error {
	req, err := wire.DecodeGetPropertyRequest(conn)
	if err != nil {
		return fmt.Errorf("decode GetPropertyRequest: %w", err)
	}
	value, opErr := d.Camera.GetProperty(req.Name)
	reply := wire.GetPropertyReply{
		Error:         wire.ErrorFrom("camera", 1, opErr),
		PropertyValue: value,
	}
	return wire.EncodeGetPropertyReply(conn, reply)
}

func (d *Daemon) handleSetProperty(conn net.Conn) error {
	req, err := wire.DecodeSetPropertyRequest(conn)
	if err != nil {
		return fmt.Errorf("decode SetPropertyRequest: %w", err)
	}
	opErr := d.Camera.SetProperty(req.Name, req.Value)
	return wire.EncodeDefaultReply(conn, wire.SetProperty, wire.ErrorFrom("camera", 1, opErr))
}

// handleGrab implements the buffer-reuse rule of §4.3: the internal
// buffer is resized only when the requested size changes, which is safe
// because the access serializer guarantees no two grabs overlap.
func (d *Daemon) handleGrab(conn net.Conn) error {
	req, err := wire.DecodeGrabRequest(conn)
	if err != nil {
		return fmt.Errorf("decode GrabRequest: %w", err)
	}
	if int(req.Size) != len(d.grabBuf) {
		d.grabBuf = make([]byte, req.Size)
	}

	opErr := d.Camera.Grab(d.grabBuf)
	if err := wire.EncodeDefaultReply(conn, wire.Grab, wire.ErrorFrom("camera", 1, opErr)); err != nil {
		return fmt.Errorf("encode Grab reply: %w", err)
	}
	if opErr != nil {
		return nil
	}
	if _, err := conn.Write(d.grabBuf); err != nil {
		return fmt.Errorf("write grab payload: %w", err)
	}
	return nil
}

func (d *Daemon) handleWrite(conn net.Conn) error {
	req, err := wire.DecodeWriteRequest(conn)
	if err != nil {
		return fmt.Errorf("decode WriteRequest: %w", err)
	}
	data := make([]byte, req.Size)
	if _, err := io.ReadFull(conn, data); err != nil {
		return fmt.Errorf("%w: write payload", wire.ErrShortRead)
	}
	opErr := d.Camera.Write(req.Name, data, int(req.Size))
	return wire.EncodeDefaultReply(conn, wire.Write, wire.ErrorFrom("camera", 1, opErr))
}

func (d *Daemon) handlePush(conn net.Conn) error {
	req, err := wire.DecodePushRequest(conn)
	if err != nil {
		return fmt.Errorf("decode PushRequest: %w", err)
	}
	nodes := d.Registry.Snapshot()
	engine := &stream.Engine{Camera: d.Camera, Stop: d.Stop}
	runErr := engine.Run(nodes, req.NumFrames)
	return wire.EncodeDefaultReply(conn, wire.Push, wire.ErrorFrom("stream", 1, runErr))
}

func (d *Daemon) handleAddEndpoint(conn net.Conn) error {
	req, err := wire.DecodeZmqAddEndpointRequest(conn)
	if err != nil {
		return fmt.Errorf("decode ZmqAddEndpointRequest: %w", err)
	}
	opErr := d.Registry.Add(req.Endpoint, registry.SocketType(req.SocketType), int(req.HWM))
	return wire.EncodeDefaultReply(conn, wire.ZmqAddEndpoint, registryErrorReply(opErr))
}

func (d *Daemon) handleRemoveEndpoint(conn net.Conn) error {
	req, err := wire.DecodeZmqRemoveEndpointRequest(conn)
	if err != nil {
		return fmt.Errorf("decode ZmqRemoveEndpointRequest: %w", err)
	}
	opErr := d.Registry.Remove(req.Endpoint)
	return wire.EncodeDefaultReply(conn, wire.ZmqRemoveEndpoint, registryErrorReply(opErr))
}

func registryErrorReply(err error) wire.ErrorReply {
	if err == nil {
		return wire.NoError
	}
	code := int32(1)
	if errors.Is(err, registry.ErrInvalidEndpoint) {
		code = 2
	}
	return wire.ErrorFrom("registry", code, err)
}
