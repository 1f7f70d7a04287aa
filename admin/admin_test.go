package admin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	zmq "github.com/pebbe/zmq4"

	"github.com/ufo-kit/uca-net/admin"
	"github.com/ufo-kit/uca-net/camera"
	"github.com/ufo-kit/uca-net/daemon"
)

func TestStatusReportsProperties(t *testing.T) {
	cam := camera.NewSim("")
	ctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	defer ctx.Term()
	d := daemon.New(cam, ctx)

	srv := admin.New(d)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	var report struct {
		Recording  bool `json:"recording"`
		Properties []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Recording {
		t.Fatal("expected Recording false on a freshly built camera")
	}
	found := false
	for _, p := range report.Properties {
		if p.Name == "exposure-time" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exposure-time in status, got %+v", report.Properties)
	}
}

func TestEndpointsAndRouteGraph(t *testing.T) {
	cam := camera.NewSim("")
	ctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	defer ctx.Term()
	d := daemon.New(cam, ctx)
	if err := d.Registry.Add("inproc://admin-test", 0, 10); err != nil {
		t.Fatalf("Registry.Add: %v", err)
	}

	srv := admin.New(d)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/endpoints")
	if err != nil {
		t.Fatalf("GET /endpoints: %v", err)
	}
	defer resp.Body.Close()

	var endpoints []struct {
		Endpoint   string `json:"endpoint"`
		SocketType string `json:"socket-type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].Endpoint != "inproc://admin-test" {
		t.Fatalf("got %+v", endpoints)
	}

	graphResp, err := http.Get(ts.URL + "/route-graph")
	if err != nil {
		t.Fatalf("GET /route-graph: %v", err)
	}
	defer graphResp.Body.Close()
	var graph map[string][]string
	if err := json.NewDecoder(graphResp.Body).Decode(&graph); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(graph["/"]) == 0 {
		t.Fatalf("expected non-empty route list, got %+v", graph)
	}
}
