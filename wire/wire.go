// Package wire implements the fixed-layout binary request/reply protocol
// spoken between ucad and its clients (§3, §4.1, §6.3). Every message is
// encoded to a flat byte layout with explicit, frozen offsets rather than
// reinterpreted from a raw struct pointer, per §9's guidance: "define and
// freeze the offsets."
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MessageType is the request/reply discriminator. Numbering is positional
// and is itself part of the wire contract (§3); never reorder these.
type MessageType uint32

const (
	Invalid MessageType = iota
	GetProperties
	GetProperty
	SetProperty
	StartRecording
	StopRecording
	StartReadout
	StopReadout
	Trigger
	Grab
	Push
	StopPush
	ZmqAddEndpoint
	ZmqRemoveEndpoint
	Write
	CloseConnection
)

var messageTypeNames = [...]string{
	"Invalid", "GetProperties", "GetProperty", "SetProperty",
	"StartRecording", "StopRecording", "StartReadout", "StopReadout",
	"Trigger", "Grab", "Push", "StopPush", "ZmqAddEndpoint",
	"ZmqRemoveEndpoint", "Write", "CloseConnection",
}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("MessageType(%d)", uint32(t))
}

// Fixed field widths from §3 and §6.3. These are frozen: changing them
// breaks wire compatibility with every existing client/server build.
const (
	nameWidth      = 128
	nickWidth      = 128
	blurbWidth     = 128
	domainWidth    = 64
	messageWidth   = 512
	propValWidth   = 128
	stringDefWidth = 128
	endpointWidth  = 128
	maxEnumValues  = 32
)

// ErrShortRead is returned when fewer bytes than a message's declared
// struct size arrived on the connection (§4.1).
var ErrShortRead = errors.New("wire: short read")

// ErrTypeMismatch is returned when a reply's type tag differs from the
// paired request's tag (§4.1, §6.3, Invariant 1 in §8).
var ErrTypeMismatch = errors.New("wire: reply type does not match request type")

// ErrUnknownType is returned by DecodeHeader when a message's type tag
// is not one of the known MessageType values.
var ErrUnknownType = errors.New("wire: unknown message type")

// StagingSize is 4 KiB, which comfortably exceeds the largest request
// struct. The connection handler in daemon does not read into a staging
// buffer of this size: it reads the 4-byte header and then exactly the
// declared size of each request, field by field.
const StagingSize = 4096

// DefaultPort is the server's default TCP listen port (§6.3).
const DefaultPort = 8989

// Header is the leading field of every message on the wire.
type Header struct {
	Type MessageType
}

func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func putInt32(b []byte, v int32)   { binary.LittleEndian.PutUint32(b, uint32(v)) }
func getInt32(b []byte) int32      { return int32(binary.LittleEndian.Uint32(b)) }
func putInt64(b []byte, v int64)   { binary.LittleEndian.PutUint64(b, uint64(v)) }
func getInt64(b []byte) int64      { return int64(binary.LittleEndian.Uint64(b)) }
func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}
func getFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
func putBool(b []byte, v bool) {
	if v {
		putUint32(b, 1)
	} else {
		putUint32(b, 0)
	}
}
func getBool(b []byte) bool { return getUint32(b) != 0 }

// putFixedString writes s into b (which must be exactly width bytes),
// truncating if s is too long and zero-padding the remainder, matching
// the "all strings are zero-padded fixed-width UTF-8; overflow is
// silently truncated" rule (§6.3).
func putFixedString(b []byte, s string, width int) {
	n := copy(b[:width], s)
	for i := n; i < width; i++ {
		b[i] = 0
	}
}

// getFixedString reads a zero-padded fixed-width string out of b,
// treating the first zero byte as the terminator (§3: "readers must
// treat trailing zero bytes as string termination").
func getFixedString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return string(b)
	}
	return string(b[:i])
}

// EncodeHeader writes just the type tag, used by request variants with
// no additional fields (StartRecording, StopRecording, StartReadout,
// StopReadout, Trigger, StopPush, CloseConnection, and the
// GetProperties request).
func EncodeHeader(w io.Writer, t MessageType) error {
	var b [4]byte
	putUint32(b[:], uint32(t))
	_, err := w.Write(b[:])
	return err
}

// DecodeHeader reads a 4-byte type tag.
func DecodeHeader(r io.Reader) (MessageType, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return Invalid, err
	}
	t := MessageType(getUint32(b[:]))
	if int(t) >= len(messageTypeNames) {
		return t, ErrUnknownType
	}
	return t, nil
}

// readFull reads exactly len(buf) bytes or returns ErrShortRead wrapping
// the underlying cause (§4.1).
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrShortRead, err)
		}
		return err
	}
	return nil
}

// CheckReplyType verifies a decoded reply's header matches the request
// type that produced it, per the reply-type-echoing invariant (§6.3,
// §8 Invariant 1).
func CheckReplyType(want, got MessageType) error {
	if want != got {
		return fmt.Errorf("%w: sent %s, got %s", ErrTypeMismatch, want, got)
	}
	return nil
}
