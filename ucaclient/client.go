// Package ucaclient implements the client-side property mirror (§4.7):
// on connect it requests the server's property list and installs each
// descriptor into a host framework, after which every local get/set is
// forwarded over the wire on a freshly opened connection per call (§1,
// §5: no reconnection or pooling across commands).
//
// The per-operation connection policy is adapted from
// comm.RemoteDevice.Open's exponential-backoff-but-bail-on-refused
// dial, generalized from a single persistent connection to one dial per
// request.
package ucaclient

import (
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ufo-kit/uca-net/wire"
)

// DefaultPort is the server's default listen port (§6.3).
const DefaultPort = wire.DefaultPort

// HostEnv names the environment variable the client reads the server
// host from, defaulting to "localhost" (§6.3).
const HostEnv = "UCA_NET_HOST"

// HostFromEnv returns the configured server host, or "localhost".
func HostFromEnv() string {
	if h := os.Getenv(HostEnv); h != "" {
		return h
	}
	return "localhost"
}

// Descriptor is a property descriptor as received at handshake.
type Descriptor = wire.PropertyDescriptor

// Framework is the minimal host-side contract the client property
// mirror needs (§6.2): install a descriptor as a local property, and
// learn when the handshake has completed.
type Framework interface {
	InstallProperty(d Descriptor)
	ConnectionReady()
}

// Client is one connection to a ucad server. It holds no persistent
// socket; Addr, Timeout, and the Properties installed by Open are the
// only state carried between calls.
type Client struct {
	Addr    string
	Timeout time.Duration

	// Properties holds the descriptors installed by the last Open call.
	Properties []Descriptor
}

// New returns a Client targeting addr ("host:port").
func New(addr string) *Client {
	return &Client{Addr: addr, Timeout: 3 * time.Second}
}

// Open connects, performs the GetProperties handshake, installs every
// valid descriptor into fw (skipping invalid ones with a warning, per
// §9's fix for the source's missing valid-flag check), and fires
// ConnectionReady.
func (c *Client) Open(fw Framework) error {
	return c.withConn(func(conn net.Conn) error {
		if err := wire.EncodeHeader(conn, wire.GetProperties); err != nil {
			return fmt.Errorf("ucaclient: send GetProperties: %w", err)
		}
		typ, count, err := wire.DecodeGetPropertiesReply(conn)
		if err != nil {
			return fmt.Errorf("ucaclient: read GetPropertiesReply: %w", err)
		}
		if err := wire.CheckReplyType(wire.GetProperties, typ); err != nil {
			return err
		}

		c.Properties = c.Properties[:0]
		for i := int32(0); i < count; i++ {
			d, err := wire.DecodePropertyDescriptor(conn)
			if err != nil {
				return fmt.Errorf("ucaclient: read descriptor %d: %w", i, err)
			}
			if !d.Valid {
				log.Printf("ucaclient: skipping invalid descriptor %q", d.Name)
				continue
			}
			c.Properties = append(c.Properties, d)
			fw.InstallProperty(d)
		}
		fw.ConnectionReady()
		return nil
	})
}

// GetProperty forwards a generic get call over the wire (§4.7).
func (c *Client) GetProperty(name string) (string, error) {
	var value string
	err := c.withConn(func(conn net.Conn) error {
		if err := wire.EncodeGetPropertyRequest(conn, wire.GetPropertyRequest{Name: name}); err != nil {
			return err
		}
		typ, reply, err := wire.DecodeGetPropertyReply(conn)
		if err != nil {
			return err
		}
		if err := wire.CheckReplyType(wire.GetProperty, typ); err != nil {
			return err
		}
		if reply.Error.Occurred {
			return errorFromReply(reply.Error)
		}
		value = reply.PropertyValue
		return nil
	})
	return value, err
}

// SetProperty forwards a generic set call over the wire (§4.7).
func (c *Client) SetProperty(name, value string) error {
	return c.withConn(func(conn net.Conn) error {
		if err := wire.EncodeSetPropertyRequest(conn, wire.SetPropertyRequest{Name: name, Value: value}); err != nil {
			return err
		}
		return c.readDefaultReply(conn, wire.SetProperty)
	})
}

func (c *Client) simple(t wire.MessageType) error {
	return c.withConn(func(conn net.Conn) error {
		if err := wire.EncodeHeader(conn, t); err != nil {
			return err
		}
		return c.readDefaultReply(conn, t)
	})
}

func (c *Client) StartRecording() error { return c.simple(wire.StartRecording) }
func (c *Client) StopRecording() error  { return c.simple(wire.StopRecording) }
func (c *Client) StartReadout() error   { return c.simple(wire.StartReadout) }
func (c *Client) StopReadout() error    { return c.simple(wire.StopReadout) }
func (c *Client) Trigger() error        { return c.simple(wire.Trigger) }

// Grab requests one frame into buf (§4.3, Scenario S2/S3): on a camera
// error, no payload bytes are read, matching the server's contract of
// sending no bulk data after an error reply.
func (c *Client) Grab(buf []byte) error {
	return c.withConn(func(conn net.Conn) error {
		if err := wire.EncodeGrabRequest(conn, int32(len(buf))); err != nil {
			return err
		}
		reply, err := wire.DecodeDefaultReply(conn)
		if err != nil {
			return err
		}
		if err := wire.CheckReplyType(wire.Grab, reply.Type); err != nil {
			return err
		}
		if reply.Error.Occurred {
			return errorFromReply(reply.Error)
		}
		_, err = readFull(conn, buf)
		return err
	})
}

// Write sends a named blob of data to the camera (§4.3).
func (c *Client) Write(name string, data []byte) error {
	return c.withConn(func(conn net.Conn) error {
		req := wire.WriteRequest{Name: name, Size: int32(len(data))}
		if err := wire.EncodeWriteRequest(conn, req); err != nil {
			return err
		}
		if _, err := conn.Write(data); err != nil {
			return fmt.Errorf("ucaclient: write payload: %w", err)
		}
		return c.readDefaultReply(conn, wire.Write)
	})
}

// Push starts streaming and blocks until the stream ends, matching the
// server's own Push reply timing (§4.5): the reply is not sent until
// the stream has stopped.
func (c *Client) Push(numFrames int64) error {
	return c.withConn(func(conn net.Conn) error {
		if err := wire.EncodePushRequest(conn, numFrames); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Time{})
		return c.readDefaultReply(conn, wire.Push)
	})
}

// StopPush requests the in-progress Push (if any) to stop at the next
// frame boundary (§4.5). It is always sent on its own connection: §4.4
// exempts it from the access serializer precisely so it can be accepted
// while a Push call holds it.
func (c *Client) StopPush() error { return c.simple(wire.StopPush) }

// AddEndpoint registers a new streaming sink (§4.6).
func (c *Client) AddEndpoint(endpoint string, socketType, hwm int32) error {
	return c.withConn(func(conn net.Conn) error {
		req := wire.ZmqAddEndpointRequest{Endpoint: endpoint, SocketType: socketType, HWM: hwm}
		if err := wire.EncodeZmqAddEndpointRequest(conn, req); err != nil {
			return err
		}
		return c.readDefaultReply(conn, wire.ZmqAddEndpoint)
	})
}

// RemoveEndpoint unregisters a streaming sink (§4.6).
func (c *Client) RemoveEndpoint(endpoint string) error {
	return c.withConn(func(conn net.Conn) error {
		if err := wire.EncodeZmqRemoveEndpointRequest(conn, endpoint); err != nil {
			return err
		}
		return c.readDefaultReply(conn, wire.ZmqRemoveEndpoint)
	})
}

func (c *Client) readDefaultReply(conn net.Conn, want wire.MessageType) error {
	reply, err := wire.DecodeDefaultReply(conn)
	if err != nil {
		return err
	}
	if err := wire.CheckReplyType(want, reply.Type); err != nil {
		return err
	}
	if reply.Error.Occurred {
		return errorFromReply(reply.Error)
	}
	return nil
}

func errorFromReply(e wire.ErrorReply) error {
	return fmt.Errorf("%s: %s (code %d)", e.Domain, e.Message, e.Code)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, fmt.Errorf("%w: %v", wire.ErrShortRead, err)
		}
	}
	return total, nil
}

// withConn opens one connection, runs fn, and closes the connection
// afterward -- every operation gets its own fresh connection (§1, §5).
// A failed dial is always surfaced as an error and the connection is
// never referenced further, avoiding the nil-dereference-on-failed-
// connect bug noted in §9.
func (c *Client) withConn(fn func(net.Conn) error) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer func() {
		wire.EncodeHeader(conn, wire.CloseConnection)
		conn.Close()
	}()
	return fn(conn)
}

// dial opens a fresh TCP connection, retrying with exponential backoff
// on everything except "connection refused" (which bails immediately),
// the same policy comm.RemoteDevice.Open uses.
func (c *Client) dial() (net.Conn, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	var conn net.Conn
	var refusedErr error
	wasTimeout := false
	op := func() error {
		var err error
		wasTimeout = false
		conn, err = net.DialTimeout("tcp", c.Addr, timeout)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				refusedErr = err
				return nil
			}
			wasTimeout = true
			return err
		}
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock,
	})
	if refusedErr != nil {
		return nil, fmt.Errorf("ucaclient: connect to %s: %w", c.Addr, refusedErr)
	}
	if err == nil && !wasTimeout && conn != nil {
		conn.SetDeadline(time.Now().Add(timeout))
		return conn, nil
	}
	if wasTimeout {
		return nil, fmt.Errorf("ucaclient: connection timeout to %s", c.Addr)
	}
	return nil, fmt.Errorf("ucaclient: connect to %s: %w", c.Addr, err)
}
