// Package camera describes the black-box contract a scientific camera
// driver must satisfy to be exposed by ucad, and the property model used
// to describe its configurable state.
//
// Minimal describes the basics every driver must implement; Sci layers
// scientific-camera extensions (recording, readout, triggering) on top.
package camera

import "sort"

// Type identifies the Go type backing a Property's value.
type Type uint32

// Property value types, matching the wire type_tag values in wire.PropertyDescriptor.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeString
	TypeEnum
	TypeInt32
	TypeInt64
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
)

// Flags carries boolean metadata about a property. It is reserved for
// forward compatibility with the wire format's flags field and is not
// interpreted by this package.
type Flags uint32

// EnumSpec describes the valid values of an enum-typed property.
type EnumSpec struct {
	Default int32
	Min     int32
	Max     int32
	Values  []int32
	Names   []string
	Nicks   []string
}

// Property is a named, typed, bounded attribute of a camera.
type Property struct {
	Name  string
	Nick  string
	Blurb string
	Type  Type
	Flags Flags

	// Min, Max, Default hold numeric bounds for numeric types. They are
	// unused for Type == TypeBool or TypeString.
	Min, Max, Default float64

	// StringDefault holds the default for Type == TypeString.
	StringDefault string

	// BoolDefault holds the default for Type == TypeBool.
	BoolDefault bool

	// Enum holds the value list for Type == TypeEnum.
	Enum EnumSpec
}

// Minimal describes the smallest camera driver ucad can serve: it can
// report its properties, and answer generic string get/set calls on
// them. Every concrete driver must implement Minimal.
type Minimal interface {
	// ListProperties returns every property the camera exposes, in a
	// stable order. ucad serves the properties beyond NumBaseProperties
	// to clients (§4.2 of the wire protocol); a driver with no
	// additional properties returns only the base set.
	ListProperties() []Property

	// NumBaseProperties is the count of leading properties in
	// ListProperties that are common to every driver and are not sent
	// to clients at handshake. Both sides of the wire protocol must
	// agree on this integer; it is a build-time constant of the
	// driver, not negotiated.
	NumBaseProperties() int

	// GetProperty returns the current value of the named property,
	// formatted as a string per the property's declared Type.
	GetProperty(name string) (string, error)

	// SetProperty parses value according to the named property's
	// declared Type and applies it.
	SetProperty(name, value string) error
}

// Sci layers scientific-camera operations on top of Minimal: recording,
// triggering, frame acquisition, and writing named blobs of data to the
// device (calibration tables, flat fields, and the like).
type Sci interface {
	Minimal

	StartRecording() error
	StopRecording() error
	StartReadout() error
	StopReadout() error
	IsRecording() bool
	Trigger() error

	// Grab fills buf with one frame. The caller owns buf and guarantees
	// its length matches the frame size currently configured on the
	// camera.
	Grab(buf []byte) error

	// Write sends a named blob of data to the camera (e.g. a
	// calibration table). size is redundant with len(data) on the wire
	// but is carried through from the protocol request so a driver can
	// detect truncation.
	Write(name string, data []byte, size int) error

	// FrameSize returns the size in bytes of one frame at the camera's
	// current configuration, used to size Grab and streaming buffers.
	FrameSize() (int, error)

	// FrameShape returns (width, height, bitdepth) of one frame, used
	// to build the streaming JSON header (§6.4).
	FrameShape() (width, height, bitdepth int, err error)
}

// Driver is the interface ucad actually requires of a camera.
type Driver = Sci

// Constructor builds a Driver instance named by a camera-name string on
// the ucad command line (§6.5). bootup carries initial property values
// to apply immediately after construction, mirroring the BootupArgs
// pattern used to configure cameras at startup elsewhere in this
// codebase.
type Constructor func(bootup map[string]string) (Driver, error)

// Drivers is the in-process registry of camera names ucad can start.
// This replaces dynamic plugin discovery (out of scope per spec.md §1)
// with a small compiled-in table; add an entry here for each driver
// this build supports.
var Drivers = map[string]Constructor{}

// Register adds a named driver constructor to Drivers. It is intended
// to be called from package init functions of driver implementations.
func Register(name string, ctor Constructor) {
	Drivers[name] = ctor
}

// Names returns the sorted list of registered driver names, used to
// build the ucad usage string the way get_camera_list did in the
// original C implementation.
func Names() []string {
	names := make([]string, 0, len(Drivers))
	for n := range Drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
