package camera

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ufo-kit/uca-net/blobstore"
	"github.com/ufo-kit/uca-net/util"
)

// Bounds for the Sim driver's numeric properties, matching the Min/Max
// advertised in ListProperties. SetProperty clamps into these with
// util.Limiter rather than rejecting out-of-range writes outright, the
// way a real detector driver saturates a requested gain or exposure at
// its hardware limit instead of erroring.
var (
	roiWidthLimit     = util.Limiter{Min: 1, Max: 4096}
	roiHeightLimit    = util.Limiter{Min: 1, Max: 4096}
	gainLimit         = util.Limiter{Min: 0, Max: 1000}
	exposureTimeLimit = util.Limiter{Min: 0, Max: 10}
)

// numBaseProperties is the count of properties every Sim camera exposes
// that are considered "base" and are not sent to clients at handshake
// (§4.2). roi-width, roi-height, and sensor-bitdepth are base: they are
// needed by ucad itself (to size Grab/stream buffers) but are not part
// of the dynamic, driver-specific property surface.
const numBaseProperties = 3

// Sim is an in-memory camera driver with no hardware dependency. It
// exists so the protocol, server, and streaming engine can be fully
// exercised without real camera hardware, the way andorhttp's
// SerialNumber: "auto" path exists to make development possible without
// physically attached hardware.
type Sim struct {
	mu sync.Mutex

	roiWidth, roiHeight, bitdepth int
	exposureTime                  time.Duration
	gain                          int32
	triggerMode                   string
	recording                     bool
	readout                       bool
	frameNumber                   int64

	store *blobstore.Store
}

const (
	triggerModeInternal = 0
	triggerModeExternal = 1
	triggerModeSoftware = 2
)

var triggerModeNames = []string{"internal", "external", "software"}

// NewSim returns a new Sim camera with the given blob store root
// (passed "" disables blob persistence; see blobstore.Store).
func NewSim(blobRoot string) *Sim {
	return &Sim{
		roiWidth:     1024,
		roiHeight:    1024,
		bitdepth:     16,
		exposureTime: time.Second,
		gain:         0,
		triggerMode:  triggerModeNames[triggerModeInternal],
		store:        blobstore.NewStore(blobRoot),
	}
}

func init() {
	Register("sim", func(bootup map[string]string) (Driver, error) {
		c := NewSim(bootup["__blobroot"])
		for k, v := range bootup {
			if k == "__blobroot" {
				continue
			}
			if err := c.SetProperty(k, v); err != nil {
				return nil, fmt.Errorf("bootup property %s=%s: %w", k, v, err)
			}
		}
		return c, nil
	})
}

// ListProperties implements Minimal.
func (s *Sim) ListProperties() []Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []Property{
		{Name: "roi-width", Type: TypeInt32, Min: 1, Max: 4096, Default: 1024},
		{Name: "roi-height", Type: TypeInt32, Min: 1, Max: 4096, Default: 1024},
		{Name: "sensor-bitdepth", Type: TypeInt32, Min: 8, Max: 16, Default: 16},
		{Name: "exposure-time", Nick: "Exposure", Blurb: "exposure time in seconds", Type: TypeFloat64, Min: 0, Max: 10, Default: 1},
		{Name: "gain", Type: TypeInt32, Min: 0, Max: 1000, Default: 0},
		{
			Name: "trigger-mode", Type: TypeEnum,
			Enum: EnumSpec{
				Default: triggerModeInternal,
				Min:     0,
				Max:     int32(len(triggerModeNames) - 1),
				Values:  []int32{triggerModeInternal, triggerModeExternal, triggerModeSoftware},
				Names:   triggerModeNames,
				Nicks:   []string{"int", "ext", "sw"},
			},
		},
	}
}

// NumBaseProperties implements Minimal.
func (s *Sim) NumBaseProperties() int { return numBaseProperties }

// GetProperty implements Minimal.
func (s *Sim) GetProperty(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "roi-width":
		return strconv.Itoa(s.roiWidth), nil
	case "roi-height":
		return strconv.Itoa(s.roiHeight), nil
	case "sensor-bitdepth":
		return strconv.Itoa(s.bitdepth), nil
	case "exposure-time":
		return strconv.FormatFloat(s.exposureTime.Seconds(), 'f', -1, 64), nil
	case "gain":
		return strconv.Itoa(int(s.gain)), nil
	case "trigger-mode":
		return strconv.Itoa(indexOf(triggerModeNames, s.triggerMode)), nil
	}
	return "", fmt.Errorf("unknown property %q", name)
}

// SetProperty implements Minimal.
func (s *Sim) SetProperty(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	value = strings.TrimSpace(value)
	switch name {
	case "roi-width":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.roiWidth = int(roiWidthLimit.Clamp(float64(v)))
	case "roi-height":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.roiHeight = int(roiHeightLimit.Clamp(float64(v)))
	case "sensor-bitdepth":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if v != 8 && v != 16 {
			return fmt.Errorf("sensor-bitdepth must be 8 or 16, got %d", v)
		}
		s.bitdepth = v
	case "exposure-time":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		f = exposureTimeLimit.Clamp(f)
		s.exposureTime = time.Duration(f * float64(time.Second))
	case "gain":
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		s.gain = int32(gainLimit.Clamp(float64(v)))
	case "trigger-mode":
		idx, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(triggerModeNames) {
			return fmt.Errorf("trigger-mode index %d out of range", idx)
		}
		s.triggerMode = triggerModeNames[idx]
	default:
		return fmt.Errorf("unknown property %q", name)
	}
	return nil
}

// StartRecording implements Sci.
func (s *Sim) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = true
	return nil
}

// StopRecording implements Sci.
func (s *Sim) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = false
	return nil
}

// StartReadout implements Sci.
func (s *Sim) StartReadout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readout = true
	return nil
}

// StopReadout implements Sci.
func (s *Sim) StopReadout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readout = false
	return nil
}

// IsRecording implements Sci.
func (s *Sim) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Trigger implements Sci.
func (s *Sim) Trigger() error {
	return nil
}

// Grab implements Sci, filling buf with synthetic noise.
func (s *Sim) Grab(buf []byte) error {
	s.mu.Lock()
	s.frameNumber++
	s.mu.Unlock()
	rand.Read(buf)
	return nil
}

// Write implements Sci, persisting data to the blob store under name.
func (s *Sim) Write(name string, data []byte, size int) error {
	if size != len(data) {
		return fmt.Errorf("write: declared size %d does not match %d bytes received", size, len(data))
	}
	_, err := s.store.Write(name, data)
	return err
}

// FrameSize implements Sci.
func (s *Sim) FrameSize() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bytesPerPixel := 1
	if s.bitdepth > 8 {
		bytesPerPixel = 2
	}
	return s.roiWidth * s.roiHeight * bytesPerPixel, nil
}

// FrameShape implements Sci.
func (s *Sim) FrameShape() (width, height, bitdepth int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roiWidth, s.roiHeight, s.bitdepth, nil
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
