// Package admin exposes a small read-only HTTP surface over a running
// ucad daemon for operators: current camera properties, registered
// streaming endpoints, and a route graph, bound with goji.io the way
// generichttp.RouteTable.Bind and server.Mainframe.RouteGraph did for
// the HTTP-camera servers this protocol supersedes. Nothing here can
// mutate camera state; all property and streaming control goes over
// the wire protocol in daemon and ucaclient.
package admin

import (
	"encoding/json"
	"net/http"
	"sort"

	"goji.io"
	"goji.io/pat"

	"github.com/ufo-kit/uca-net/daemon"
	"github.com/ufo-kit/uca-net/registry"
	"github.com/ufo-kit/uca-net/util"
)

// RouteTable maps goji patterns to handlers, mirroring the RouteTable
// idiom used throughout the HTTP-camera servers in this codebase.
type RouteTable map[*pat.Pattern]http.HandlerFunc

// Endpoints returns the bound URL patterns, sorted. util.UniqueString
// guards against two distinct *pat.Pattern keys rendering to the same
// string, the same way generichttp.RouteTable.Endpoints used it.
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for p := range rt {
		routes = append(routes, p.String())
	}
	routes = util.UniqueString(routes)
	sort.Strings(routes)
	return routes
}

// hasRoute reports whether a pattern rendering to the same string as
// candidate is already bound in rt. pat.Get("/x") allocates a new
// *pat.Pattern every call, so two calls with the same path never
// compare equal as map keys even though they mean the same route;
// comparing by .String() is the only reliable equality check.
func (rt RouteTable) hasRoute(candidate *pat.Pattern) bool {
	want := candidate.String()
	for p := range rt {
		if p.String() == want {
			return true
		}
	}
	return false
}

// Bind registers every route in rt on mux, plus /endpoints listing the
// table itself when rt does not already bind /endpoints, matching
// generichttp.RouteTable.Bind.
func (rt RouteTable) Bind(mux *goji.Mux) {
	for p, h := range rt {
		mux.HandleFunc(p, h)
	}
	endpoints := pat.Get("/endpoints")
	if !rt.hasRoute(endpoints) {
		mux.HandleFunc(endpoints, rt.endpointsHTTP())
	}
}

func (rt RouteTable) endpointsHTTP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rt.Endpoints())
	}
}

// Server wraps a daemon.Daemon for introspection. It holds no state of
// its own: every handler reads straight through to the daemon.
type Server struct {
	Daemon *daemon.Daemon
}

// New returns a Server over d.
func New(d *daemon.Daemon) *Server {
	return &Server{Daemon: d}
}

// propertyStatus is one row of the /status response.
type propertyStatus struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// statusReport is the /status response body.
type statusReport struct {
	Recording  bool             `json:"recording"`
	Properties []propertyStatus `json:"properties"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	cam := s.Daemon.Camera
	props := cam.ListProperties()
	report := statusReport{
		Recording:  cam.IsRecording(),
		Properties: make([]propertyStatus, 0, len(props)),
	}
	for _, p := range props {
		v, err := cam.GetProperty(p.Name)
		if err != nil {
			continue
		}
		report.Properties = append(report.Properties, propertyStatus{Name: p.Name, Value: v})
	}
	writeJSON(w, report)
}

// endpointStatus is one row of the /endpoints response.
type endpointStatus struct {
	Endpoint   string `json:"endpoint"`
	SocketType string `json:"socket-type"`
	HWM        int    `json:"hwm"`
}

func (s *Server) endpointsHandler(w http.ResponseWriter, r *http.Request) {
	nodes := s.Daemon.Registry.Snapshot()
	out := make([]endpointStatus, 0, len(nodes))
	for _, n := range nodes {
		typ := "pub"
		if n.SocketType == registry.PUSH {
			typ = "push"
		}
		out = append(out, endpointStatus{Endpoint: n.Endpoint, SocketType: typ, HWM: n.HWM})
	}
	writeJSON(w, out)
}

// routeGraphHandler mirrors server.Mainframe.RouteGraph: a depth-1 map
// of this server's single stem to its bound endpoints.
func (s *Server) routeGraphHandler(rt RouteTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string][]string{"/": rt.Endpoints()})
	}
}

// Mux builds a goji.Mux serving /status, /endpoints, and /route-graph
// read-only over s.Daemon.
func (s *Server) Mux() *goji.Mux {
	rt := RouteTable{
		pat.Get("/status"):    s.statusHandler,
		pat.Get("/endpoints"): s.endpointsHandler,
	}
	mux := goji.NewMux()
	rt.Bind(mux)
	mux.HandleFunc(pat.Get("/route-graph"), s.routeGraphHandler(rt))
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
