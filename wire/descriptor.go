package wire

import (
	"fmt"
	"io"
	"log"

	"github.com/ufo-kit/uca-net/camera"
)

// PropertyType is the wire type_tag for a property descriptor (§3).
type PropertyType uint32

const (
	PropInvalid PropertyType = iota
	PropBool
	PropString
	PropEnum
	PropInt32
	PropInt64
	PropUint32
	PropUint64
	PropFloat32
	PropFloat64
)

func propertyTypeFrom(t camera.Type) PropertyType { return PropertyType(t) }

// EnumValue is one named/nicked integer value of an enum property.
type EnumValue struct {
	Value int32
	Name  string
	Nick  string
}

// PropertyDescriptor is the server->client handshake record for one
// property (§3, §4.2). The numeric bounds are carried as float64
// regardless of the property's declared width: every width the protocol
// supports (bool/int32/uint32/float32, and the practical range of
// int64/uint64/float64 camera properties) round-trips exactly through
// float64, and unifying the union's numeric arm keeps the wire layout
// fixed-size without a type switch on the decode side.
type PropertyDescriptor struct {
	Type  PropertyType
	Flags uint32
	Name  string
	Nick  string
	Blurb string
	Valid bool

	Min, Max, Default float64
	StringDefault     string
	BoolDefault       bool
	EnumDefault       int32
	EnumMin, EnumMax  int32
	EnumValues        []EnumValue
}

// descriptorSize is the frozen on-wire size of one PropertyDescriptor:
// header fields + the union sized to its largest variant (enum).
const descriptorSize = 4 + 4 + nameWidth + nickWidth + blurbWidth + 4 + enumUnionSize

const (
	numericUnionSize = 8 + 8 + 8                                     // min, max, default as float64
	stringUnionSize  = stringDefWidth                                // default
	boolUnionSize    = 4                                             // default
	enumUnionSize    = 4 + 4 + 4 + 4 + maxEnumValues*4 + maxEnumValues*nameWidth + maxEnumValues*nickWidth
)

// FromCameraProperty converts a camera.Property into its wire
// descriptor, truncating enum value lists to maxEnumValues and logging
// a warning when truncation happens (§3, §9).
func FromCameraProperty(p camera.Property) PropertyDescriptor {
	d := PropertyDescriptor{
		Type:  propertyTypeFrom(p.Type),
		Flags: uint32(p.Flags),
		Name:  p.Name,
		Nick:  p.Nick,
		Blurb: p.Blurb,
	}
	switch p.Type {
	case camera.TypeBool:
		d.Valid = true
		d.BoolDefault = p.BoolDefault
	case camera.TypeString:
		d.Valid = true
		d.StringDefault = p.StringDefault
	case camera.TypeEnum:
		d.Valid = true
		d.EnumDefault = p.Enum.Default
		d.EnumMin = p.Enum.Min
		d.EnumMax = p.Enum.Max
		values := p.Enum.Values
		if len(values) > maxEnumValues {
			log.Printf("wire: property %q has %d enum values, truncating to %d", p.Name, len(values), maxEnumValues)
			values = values[:maxEnumValues]
		}
		for i, v := range values {
			ev := EnumValue{Value: v}
			if i < len(p.Enum.Names) {
				ev.Name = p.Enum.Names[i]
			}
			if i < len(p.Enum.Nicks) {
				ev.Nick = p.Enum.Nicks[i]
			}
			d.EnumValues = append(d.EnumValues, ev)
		}
	case camera.TypeInt32, camera.TypeInt64, camera.TypeUint32, camera.TypeUint64, camera.TypeFloat32, camera.TypeFloat64:
		d.Valid = true
		d.Min, d.Max, d.Default = p.Min, p.Max, p.Default
	default:
		d.Valid = false
	}
	return d
}

// Encode writes d in its frozen on-wire layout.
func (d PropertyDescriptor) Encode(w io.Writer) error {
	buf := make([]byte, descriptorSize)
	off := 0
	putUint32(buf[off:], uint32(d.Type))
	off += 4
	putUint32(buf[off:], d.Flags)
	off += 4
	putFixedString(buf[off:off+nameWidth], d.Name, nameWidth)
	off += nameWidth
	putFixedString(buf[off:off+nickWidth], d.Nick, nickWidth)
	off += nickWidth
	putFixedString(buf[off:off+blurbWidth], d.Blurb, blurbWidth)
	off += blurbWidth
	putBool(buf[off:], d.Valid)
	off += 4

	switch d.Type {
	case PropBool:
		putBool(buf[off:], d.BoolDefault)
	case PropString:
		putFixedString(buf[off:off+stringDefWidth], d.StringDefault, stringDefWidth)
	case PropEnum:
		putInt32(buf[off:], d.EnumDefault)
		putInt32(buf[off+4:], d.EnumMin)
		putInt32(buf[off+8:], d.EnumMax)
		n := len(d.EnumValues)
		if n > maxEnumValues {
			n = maxEnumValues
		}
		putInt32(buf[off+12:], int32(n))
		valuesOff := off + 16
		namesOff := valuesOff + maxEnumValues*4
		nicksOff := namesOff + maxEnumValues*nameWidth
		for i := 0; i < n; i++ {
			ev := d.EnumValues[i]
			putInt32(buf[valuesOff+i*4:], ev.Value)
			putFixedString(buf[namesOff+i*nameWidth:namesOff+(i+1)*nameWidth], ev.Name, nameWidth)
			putFixedString(buf[nicksOff+i*nickWidth:nicksOff+(i+1)*nickWidth], ev.Nick, nickWidth)
		}
	default:
		putFloat64(buf[off:], d.Min)
		putFloat64(buf[off+8:], d.Max)
		putFloat64(buf[off+16:], d.Default)
	}

	_, err := w.Write(buf)
	return err
}

// DecodePropertyDescriptor reads one descriptor in its frozen layout.
func DecodePropertyDescriptor(r io.Reader) (PropertyDescriptor, error) {
	buf := make([]byte, descriptorSize)
	if err := readFull(r, buf); err != nil {
		return PropertyDescriptor{}, err
	}
	var d PropertyDescriptor
	off := 0
	d.Type = PropertyType(getUint32(buf[off:]))
	off += 4
	d.Flags = getUint32(buf[off:])
	off += 4
	d.Name = getFixedString(buf[off : off+nameWidth])
	off += nameWidth
	d.Nick = getFixedString(buf[off : off+nickWidth])
	off += nickWidth
	d.Blurb = getFixedString(buf[off : off+blurbWidth])
	off += blurbWidth
	d.Valid = getBool(buf[off:])
	off += 4

	switch d.Type {
	case PropBool:
		d.BoolDefault = getBool(buf[off:])
	case PropString:
		d.StringDefault = getFixedString(buf[off : off+stringDefWidth])
	case PropEnum:
		d.EnumDefault = getInt32(buf[off:])
		d.EnumMin = getInt32(buf[off+4:])
		d.EnumMax = getInt32(buf[off+8:])
		n := int(getInt32(buf[off+12:]))
		if n > maxEnumValues {
			n = maxEnumValues
		}
		valuesOff := off + 16
		namesOff := valuesOff + maxEnumValues*4
		nicksOff := namesOff + maxEnumValues*nameWidth
		for i := 0; i < n; i++ {
			ev := EnumValue{
				Value: getInt32(buf[valuesOff+i*4:]),
				Name:  getFixedString(buf[namesOff+i*nameWidth : namesOff+(i+1)*nameWidth]),
				Nick:  getFixedString(buf[nicksOff+i*nickWidth : nicksOff+(i+1)*nickWidth]),
			}
			d.EnumValues = append(d.EnumValues, ev)
		}
	default:
		d.Min = getFloat64(buf[off:])
		d.Max = getFloat64(buf[off+8:])
		d.Default = getFloat64(buf[off+16:])
	}
	return d, nil
}

func (d PropertyDescriptor) String() string {
	return fmt.Sprintf("PropertyDescriptor{%s type=%d valid=%v}", d.Name, d.Type, d.Valid)
}
