// Package stream implements the streaming fan-out engine (§4.5): a
// single image-producer loop feeding N per-endpoint sender goroutines,
// synchronized by a pair of one-deep channels per endpoint so that the
// producer cannot outrun any endpoint by more than one frame. This is
// the channel-pair mapping §9 names as the target-language translation
// of the source's two-queue pattern.
package stream

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/ufo-kit/uca-net/camera"
	"github.com/ufo-kit/uca-net/registry"
)

// StopFlag is the process-global "stop streaming" flag (§5: "written
// without the lock; ... written-once-per-stream-lifetime"). It is
// implemented with atomic ops rather than a mutex per §9's suggested
// fix ("the stop-stream flag becomes an atomic bool").
type StopFlag struct {
	v int32
}

// Set requests that the running Push stop at the next frame boundary.
// A Set made while no Push is running has no effect on the next Push,
// because Run calls Reset when it starts.
func (f *StopFlag) Set() { atomic.StoreInt32(&f.v, 1) }

// IsSet reports whether Set has been called since the last Reset.
func (f *StopFlag) IsSet() bool { return atomic.LoadInt32(&f.v) != 0 }

// Reset clears the flag; called once at the start of each Push.
func (f *StopFlag) Reset() { atomic.StoreInt32(&f.v, 0) }

// Payload is one frame handed from the producer to a sender goroutine
// (§3). An empty Image is the end-of-stream sentinel.
type Payload struct {
	Header []byte
	Image  []byte
}

type frameHeader struct {
	FrameNumber int64  `json:"frame-number"`
	Timestamp   string `json:"timestamp"`
	Dtype       string `json:"dtype"`
	Shape       [2]int `json:"shape"`
}

type eosHeader struct {
	End bool `json:"end"`
}

func timestamp(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

func dtypeFor(bitdepth int) string {
	if bitdepth <= 8 {
		return "uint8"
	}
	return "uint16"
}

// Engine runs one Push invocation to completion.
type Engine struct {
	Camera camera.Driver
	Stop   *StopFlag
}

// endpoint is the per-Push state for one registered node: the channel
// pair described in §3, plus the goroutine draining it.
type endpoint struct {
	node     *registry.Node
	data     chan Payload
	feedback chan int32
}

// Run streams frames to every node in nodes until numFrames have been
// sent (numFrames < 0 means "until stop"), the stop flag is observed, or
// a grab/send failure occurs. It returns the error that ended the loop,
// if any; a nil return means the stream ended cleanly (stop requested or
// frame count exhausted), in which case end-of-stream was sent to every
// endpoint (§4.5, step 4).
func (e *Engine) Run(nodes []*registry.Node, numFrames int64) error {
	e.Stop.Reset()

	eps := make([]*endpoint, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		ep := &endpoint{node: n, data: make(chan Payload, 1), feedback: make(chan int32, 1)}
		eps[i] = ep
		wg.Add(1)
		go senderLoop(ep, &wg)
	}

	size, err := e.Camera.FrameSize()
	if err != nil {
		closeAll(eps)
		wg.Wait()
		return fmt.Errorf("stream: frame size: %w", err)
	}
	buf := make([]byte, size)

	var frameNumber int64
	var grabErr error
loop:
	for {
		if e.Stop.IsSet() || (numFrames >= 0 && frameNumber >= numFrames) {
			break loop
		}
		if err := e.Camera.Grab(buf); err != nil {
			grabErr = fmt.Errorf("stream: grab: %w", err)
			break loop
		}
		width, height, bitdepth, err := e.Camera.FrameShape()
		if err != nil {
			grabErr = fmt.Errorf("stream: frame shape: %w", err)
			break loop
		}
		header, err := json.Marshal(frameHeader{
			FrameNumber: frameNumber,
			Timestamp:   timestamp(time.Now()),
			Dtype:       dtypeFor(bitdepth),
			Shape:       [2]int{width, height},
		})
		if err != nil {
			grabErr = fmt.Errorf("stream: encode header: %w", err)
			break loop
		}

		for _, ep := range eps {
			ep.data <- Payload{Header: header, Image: buf}
		}
		failed := false
		for _, ep := range eps {
			if status := <-ep.feedback; status != 0 {
				failed = true
			}
		}
		if failed {
			grabErr = fmt.Errorf("stream: send failed to at least one endpoint")
			break loop
		}
		frameNumber++
	}

	if grabErr != nil {
		closeAll(eps)
		wg.Wait()
		return grabErr
	}

	eosBytes, err := json.Marshal(eosHeader{End: true})
	if err != nil {
		closeAll(eps)
		wg.Wait()
		return fmt.Errorf("stream: encode eos header: %w", err)
	}
	for _, ep := range eps {
		ep.data <- Payload{Header: eosBytes}
		<-ep.feedback
		close(ep.data)
	}
	wg.Wait()
	return nil
}

func closeAll(eps []*endpoint) {
	for _, ep := range eps {
		close(ep.data)
	}
}

// senderLoop is the per-endpoint sender task (§4.5). It pops one
// payload, sends the header (marked "more parts follow" when an image
// accompanies it), then the image if present, and pushes exactly one
// status to the feedback queue per payload popped (§3's queue
// invariant). It exits when it sees an empty-image payload (end of
// stream) or a send failure, or when data is closed by the producer
// (grab failure: no further payload is coming).
func senderLoop(ep *endpoint, wg *sync.WaitGroup) {
	defer wg.Done()
	for payload := range ep.data {
		more := len(payload.Image) > 0
		flag := zmq.Flag(0)
		if more {
			flag = zmq.SNDMORE
		}
		_, err := ep.node.Socket.SendBytes(payload.Header, flag)
		status := int32(0)
		if err != nil {
			status = 1
		} else if more {
			if _, err2 := ep.node.Socket.SendBytes(payload.Image, 0); err2 != nil {
				status = 1
				err = err2
			}
		}
		ep.feedback <- status
		if !more || err != nil {
			return
		}
	}
}
