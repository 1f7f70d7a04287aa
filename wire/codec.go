package wire

import (
	"io"
)

// ErrorReply is embedded in most replies (§3). When Occurred is false
// the other fields are undefined and should not be inspected.
type ErrorReply struct {
	Occurred bool
	Domain   string
	Code     int32
	Message  string
}

const errorReplySize = 4 + domainWidth + 4 + messageWidth

func (e ErrorReply) encode(buf []byte) {
	off := 0
	putBool(buf[off:], e.Occurred)
	off += 4
	putFixedString(buf[off:off+domainWidth], e.Domain, domainWidth)
	off += domainWidth
	putInt32(buf[off:], e.Code)
	off += 4
	putFixedString(buf[off:off+messageWidth], e.Message, messageWidth)
}

func decodeErrorReply(buf []byte) ErrorReply {
	var e ErrorReply
	off := 0
	e.Occurred = getBool(buf[off:])
	off += 4
	e.Domain = getFixedString(buf[off : off+domainWidth])
	off += domainWidth
	e.Code = getInt32(buf[off:])
	off += 4
	e.Message = getFixedString(buf[off : off+messageWidth])
	return e
}

// NoError is the zero-value, "nothing went wrong" ErrorReply.
var NoError = ErrorReply{}

// ErrorFrom builds an ErrorReply from a Go error, using domain as the
// error's namespace (e.g. "camera", "registry") and code as a
// domain-specific numeric code. A nil err yields NoError.
func ErrorFrom(domain string, code int32, err error) ErrorReply {
	if err == nil {
		return NoError
	}
	return ErrorReply{Occurred: true, Domain: domain, Code: code, Message: err.Error()}
}

// DefaultReply is the reply shape for every handler that only reports
// success/failure (§4.3): SetProperty, Start/StopRecording,
// Start/StopReadout, Trigger, Grab, Write, Push, StopPush,
// ZmqAddEndpoint, ZmqRemoveEndpoint.
type DefaultReply struct {
	Type  MessageType
	Error ErrorReply
}

const defaultReplySize = 4 + errorReplySize

// EncodeDefaultReply writes a DefaultReply whose type echoes the
// request that produced it, per the reply-type-echoing invariant.
func EncodeDefaultReply(w io.Writer, requestType MessageType, err ErrorReply) error {
	buf := make([]byte, defaultReplySize)
	putUint32(buf[0:], uint32(requestType))
	err.encode(buf[4:])
	_, writeErr := w.Write(buf)
	return writeErr
}

// DecodeDefaultReply reads a DefaultReply.
func DecodeDefaultReply(r io.Reader) (DefaultReply, error) {
	buf := make([]byte, defaultReplySize)
	if readErr := readFull(r, buf); readErr != nil {
		return DefaultReply{}, readErr
	}
	return DefaultReply{
		Type:  MessageType(getUint32(buf[0:])),
		Error: decodeErrorReply(buf[4:]),
	}, nil
}

// GetPropertyRequest asks for the current string value of a property.
type GetPropertyRequest struct {
	Name string
}

const getPropertyRequestSize = 4 + nameWidth

func EncodeGetPropertyRequest(w io.Writer, req GetPropertyRequest) error {
	buf := make([]byte, getPropertyRequestSize)
	putUint32(buf[0:], uint32(GetProperty))
	putFixedString(buf[4:4+nameWidth], req.Name, nameWidth)
	_, err := w.Write(buf)
	return err
}

func DecodeGetPropertyRequest(r io.Reader) (GetPropertyRequest, error) {
	buf := make([]byte, nameWidth)
	if err := readFull(r, buf); err != nil {
		return GetPropertyRequest{}, err
	}
	return GetPropertyRequest{Name: getFixedString(buf)}, nil
}

// GetPropertyReply carries the string-formatted property value (§4.3).
type GetPropertyReply struct {
	Error         ErrorReply
	PropertyValue string
}

const getPropertyReplySize = 4 + errorReplySize + propValWidth

func EncodeGetPropertyReply(w io.Writer, reply GetPropertyReply) error {
	buf := make([]byte, getPropertyReplySize)
	putUint32(buf[0:], uint32(GetProperty))
	reply.Error.encode(buf[4:])
	putFixedString(buf[4+errorReplySize:4+errorReplySize+propValWidth], reply.PropertyValue, propValWidth)
	_, err := w.Write(buf)
	return err
}

func DecodeGetPropertyReply(r io.Reader) (MessageType, GetPropertyReply, error) {
	buf := make([]byte, getPropertyReplySize)
	if err := readFull(r, buf); err != nil {
		return Invalid, GetPropertyReply{}, err
	}
	t := MessageType(getUint32(buf[0:]))
	reply := GetPropertyReply{
		Error:         decodeErrorReply(buf[4:]),
		PropertyValue: getFixedString(buf[4+errorReplySize : 4+errorReplySize+propValWidth]),
	}
	return t, reply, nil
}

// SetPropertyRequest parses Value according to the property's declared
// type and applies it (§4.3). Booleans use the literal "TRUE"/anything-
// else convention on the wire.
type SetPropertyRequest struct {
	Name  string
	Value string
}

const setPropertyRequestSize = 4 + nameWidth + propValWidth

func EncodeSetPropertyRequest(w io.Writer, req SetPropertyRequest) error {
	buf := make([]byte, setPropertyRequestSize)
	putUint32(buf[0:], uint32(SetProperty))
	putFixedString(buf[4:4+nameWidth], req.Name, nameWidth)
	putFixedString(buf[4+nameWidth:4+nameWidth+propValWidth], req.Value, propValWidth)
	_, err := w.Write(buf)
	return err
}

func DecodeSetPropertyRequest(r io.Reader) (SetPropertyRequest, error) {
	buf := make([]byte, nameWidth+propValWidth)
	if err := readFull(r, buf); err != nil {
		return SetPropertyRequest{}, err
	}
	return SetPropertyRequest{
		Name:  getFixedString(buf[0:nameWidth]),
		Value: getFixedString(buf[nameWidth : nameWidth+propValWidth]),
	}, nil
}

// GetPropertiesReply announces the count of descriptors that follow
// immediately on the wire (§4.2).
type GetPropertiesReply struct {
	Count int32
}

const getPropertiesReplySize = 4 + 4

func EncodeGetPropertiesReply(w io.Writer, count int32) error {
	buf := make([]byte, getPropertiesReplySize)
	putUint32(buf[0:], uint32(GetProperties))
	putInt32(buf[4:], count)
	_, err := w.Write(buf)
	return err
}

func DecodeGetPropertiesReply(r io.Reader) (MessageType, int32, error) {
	buf := make([]byte, getPropertiesReplySize)
	if err := readFull(r, buf); err != nil {
		return Invalid, 0, err
	}
	return MessageType(getUint32(buf[0:])), getInt32(buf[4:]), nil
}

// GrabRequest asks the server to call camera.Grab into a buffer of Size
// bytes, reused across calls unless Size changes (§4.3).
type GrabRequest struct {
	Size int32
}

const grabRequestSize = 4 + 4

func EncodeGrabRequest(w io.Writer, size int32) error {
	buf := make([]byte, grabRequestSize)
	putUint32(buf[0:], uint32(Grab))
	putInt32(buf[4:], size)
	_, err := w.Write(buf)
	return err
}

func DecodeGrabRequest(r io.Reader) (GrabRequest, error) {
	buf := make([]byte, 4)
	if err := readFull(r, buf); err != nil {
		return GrabRequest{}, err
	}
	return GrabRequest{Size: getInt32(buf)}, nil
}

// WriteRequest precedes Size raw bytes sent immediately after it, to be
// passed to camera.Write(Name, ...) (§4.3).
type WriteRequest struct {
	Name string
	Size int32
}

const writeRequestSize = 4 + nameWidth + 4

func EncodeWriteRequest(w io.Writer, req WriteRequest) error {
	buf := make([]byte, writeRequestSize)
	putUint32(buf[0:], uint32(Write))
	putFixedString(buf[4:4+nameWidth], req.Name, nameWidth)
	putInt32(buf[4+nameWidth:], req.Size)
	_, err := w.Write(buf)
	return err
}

func DecodeWriteRequest(r io.Reader) (WriteRequest, error) {
	buf := make([]byte, nameWidth+4)
	if err := readFull(r, buf); err != nil {
		return WriteRequest{}, err
	}
	return WriteRequest{
		Name: getFixedString(buf[0:nameWidth]),
		Size: getInt32(buf[nameWidth:]),
	}, nil
}

// PushRequest starts the streaming loop (§4.5). A negative NumFrames
// means "until stop."
type PushRequest struct {
	NumFrames int64
}

const pushRequestSize = 4 + 8

func EncodePushRequest(w io.Writer, numFrames int64) error {
	buf := make([]byte, pushRequestSize)
	putUint32(buf[0:], uint32(Push))
	putInt64(buf[4:], numFrames)
	_, err := w.Write(buf)
	return err
}

func DecodePushRequest(r io.Reader) (PushRequest, error) {
	buf := make([]byte, 8)
	if err := readFull(r, buf); err != nil {
		return PushRequest{}, err
	}
	return PushRequest{NumFrames: getInt64(buf)}, nil
}

// ZmqAddEndpointRequest registers a new streaming sink (§4.6).
type ZmqAddEndpointRequest struct {
	Endpoint   string
	SocketType int32
	HWM        int32
}

const zmqAddEndpointRequestSize = 4 + endpointWidth + 4 + 4

func EncodeZmqAddEndpointRequest(w io.Writer, req ZmqAddEndpointRequest) error {
	buf := make([]byte, zmqAddEndpointRequestSize)
	putUint32(buf[0:], uint32(ZmqAddEndpoint))
	putFixedString(buf[4:4+endpointWidth], req.Endpoint, endpointWidth)
	putInt32(buf[4+endpointWidth:], req.SocketType)
	putInt32(buf[4+endpointWidth+4:], req.HWM)
	_, err := w.Write(buf)
	return err
}

func DecodeZmqAddEndpointRequest(r io.Reader) (ZmqAddEndpointRequest, error) {
	buf := make([]byte, endpointWidth+4+4)
	if err := readFull(r, buf); err != nil {
		return ZmqAddEndpointRequest{}, err
	}
	return ZmqAddEndpointRequest{
		Endpoint:   getFixedString(buf[0:endpointWidth]),
		SocketType: getInt32(buf[endpointWidth:]),
		HWM:        getInt32(buf[endpointWidth+4:]),
	}, nil
}

// ZmqRemoveEndpointRequest unregisters a streaming sink (§4.6).
type ZmqRemoveEndpointRequest struct {
	Endpoint string
}

const zmqRemoveEndpointRequestSize = 4 + endpointWidth

func EncodeZmqRemoveEndpointRequest(w io.Writer, endpoint string) error {
	buf := make([]byte, zmqRemoveEndpointRequestSize)
	putUint32(buf[0:], uint32(ZmqRemoveEndpoint))
	putFixedString(buf[4:4+endpointWidth], endpoint, endpointWidth)
	_, err := w.Write(buf)
	return err
}

func DecodeZmqRemoveEndpointRequest(r io.Reader) (ZmqRemoveEndpointRequest, error) {
	buf := make([]byte, endpointWidth)
	if err := readFull(r, buf); err != nil {
		return ZmqRemoveEndpointRequest{}, err
	}
	return ZmqRemoveEndpointRequest{Endpoint: getFixedString(buf)}, nil
}
