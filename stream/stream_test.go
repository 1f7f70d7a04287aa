package stream

import (
	"encoding/json"
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/ufo-kit/uca-net/camera"
	"github.com/ufo-kit/uca-net/registry"
)

func TestEngineRunSendsExactFrameCountThenEOS(t *testing.T) {
	ctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	defer ctx.Term()

	reg := registry.New(ctx)
	endpoint := "inproc://stream-test"
	if err := reg.Add(endpoint, registry.PUSH, 10); err != nil {
		t.Fatalf("Add: %v", err)
	}

	puller, err := ctx.NewSocket(zmq.PULL)
	if err != nil {
		t.Fatalf("NewSocket PULL: %v", err)
	}
	defer puller.Close()
	if err := puller.Connect(endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	cam := camera.NewSim("")
	cam.SetProperty("roi-width", "4")
	cam.SetProperty("roi-height", "2")
	cam.SetProperty("sensor-bitdepth", "16")

	engine := &Engine{Camera: cam, Stop: &StopFlag{}}
	nodes := reg.Snapshot()

	done := make(chan error, 1)
	go func() { done <- engine.Run(nodes, 3) }()

	frameSize, _ := cam.FrameSize()
	for i := 0; i < 3; i++ {
		more, err := puller.RecvMessageBytes(0)
		if err != nil {
			t.Fatalf("frame %d: recv: %v", i, err)
		}
		var hdr struct {
			FrameNumber int64  `json:"frame-number"`
			Dtype       string `json:"dtype"`
			Shape       [2]int `json:"shape"`
		}
		if err := json.Unmarshal(more[0], &hdr); err != nil {
			t.Fatalf("frame %d: unmarshal header: %v", i, err)
		}
		if hdr.FrameNumber != int64(i) {
			t.Fatalf("frame %d: got frame-number %d", i, hdr.FrameNumber)
		}
		if len(more) != 2 || len(more[1]) != frameSize {
			t.Fatalf("frame %d: got %d parts, image len %d, want image len %d", i, len(more), len(more[1]), frameSize)
		}
	}

	eos, err := puller.RecvMessageBytes(0)
	if err != nil {
		t.Fatalf("eos: recv: %v", err)
	}
	var eosMsg struct {
		End bool `json:"end"`
	}
	if err := json.Unmarshal(eos[0], &eosMsg); err != nil {
		t.Fatalf("unmarshal eos: %v", err)
	}
	if !eosMsg.End || len(eos) != 1 {
		t.Fatalf("got eos=%+v parts=%d, want end=true single part", eosMsg, len(eos))
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStopFlag(t *testing.T) {
	var f StopFlag
	if f.IsSet() {
		t.Fatal("expected unset initially")
	}
	f.Set()
	if !f.IsSet() {
		t.Fatal("expected set after Set")
	}
	f.Reset()
	if f.IsSet() {
		t.Fatal("expected unset after Reset")
	}
}
