// Command ucad serves a camera over the network (§6.5):
//
//	ucad [--port P] <camera-name> [prop=val ...]
//
// Exit status is 0 on clean shutdown, 1 on any initialization or
// serve-time error. Configuration defaults may also be inspected or
// regenerated via the mkconf/conf/version subcommands, in the style of
// cmd/andorhttp3/main.go.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/knadh/koanf"
	zmq "github.com/pebbe/zmq4"
	yml "gopkg.in/yaml.v2"

	"github.com/ufo-kit/uca-net/admin"
	"github.com/ufo-kit/uca-net/camera"
	"github.com/ufo-kit/uca-net/config"
	"github.com/ufo-kit/uca-net/daemon"
	"github.com/ufo-kit/uca-net/util"
)

var (
	// Version is injected via -ldflags at build time in release builds.
	Version = "dev"

	// ConfigFileName is the YAML file Load/mkconf read and write.
	ConfigFileName = "ucad.yml"

	k = koanf.New(".")
)

func usage() {
	fmt.Fprintf(os.Stderr, `ucad serves a scientific camera over TCP so that a remote
client can drive it as if it were attached locally.

Usage:
	ucad [--port P] <camera-name> [prop=val ...]
	ucad mkconf
	ucad conf
	ucad version

Available camera drivers: %s
`, strings.Join(camera.Names(), ", "))
}

func mkconf() {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(config.Default()); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	if err := yml.NewEncoder(os.Stdout).Encode(config.Default()); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("ucad version %s\n", Version)
}

func main() {
	if len(os.Args) == 1 {
		usage()
		os.Exit(1)
	}

	switch strings.ToLower(os.Args[1]) {
	case "help", "-h", "--help":
		usage()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "version":
		pversion()
		return
	}

	if err := config.Load(k, ConfigFileName); err != nil {
		log.Fatalf("ucad: load config: %v", err)
	}
	cfg := config.Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Fatalf("ucad: unmarshal config: %v", err)
	}

	fs := flag.NewFlagSet("ucad", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "TCP port to listen on")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	cameraName := args[0]
	propArgs := args[1:]

	ctor, ok := camera.Drivers[cameraName]
	if !ok {
		log.Printf("ucad: unknown camera %q; available: %s", cameraName, strings.Join(camera.Names(), ", "))
		os.Exit(1)
	}

	bootup := make(map[string]string, len(cfg.BootupArgs)+len(propArgs)+1)
	for k, v := range cfg.BootupArgs {
		bootup[k] = v
	}
	bootup["__blobroot"] = cfg.BlobRoot
	for _, kv := range propArgs {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			log.Printf("ucad: ignoring malformed property argument %q (want name=value)", kv)
			continue
		}
		bootup[name] = value
	}

	cam, err := ctor(bootup)
	if err != nil {
		log.Printf("ucad: construct camera %q: %v", cameraName, err)
		os.Exit(1)
	}

	zctx, err := zmq.NewContext()
	if err != nil {
		log.Printf("ucad: zmq context: %v", err)
		os.Exit(1)
	}
	defer zctx.Term()

	addr := fmt.Sprintf(":%d", *port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("ucad: listen on %s: %v", addr, err)
		os.Exit(1)
	}
	defer ln.Close()

	props := cam.ListProperties()
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	log.Printf("ucad: serving %q on %s (properties: %s)", cameraName, addr, strings.Join(names, ", "))

	stopping := false
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("ucad: shutting down")
		stopping = true
		closeErr := ln.Close()
		termErr := zctx.Term()
		if err := util.MergeErrors([]error{closeErr, termErr}); err != nil {
			log.Printf("ucad: shutdown: %v", err)
		}
	}()

	d := daemon.New(cam, zctx)

	if cfg.AdminAddr != "" {
		admSrv := admin.New(d)
		go func() {
			log.Printf("ucad: admin surface on %s", cfg.AdminAddr)
			if err := http.ListenAndServe(cfg.AdminAddr, admSrv.Mux()); err != nil {
				log.Printf("ucad: admin surface: %v", err)
			}
		}()
	}

	if err := d.Serve(ln); err != nil {
		if stopping && errors.Is(err, net.ErrClosed) {
			return
		}
		log.Printf("ucad: serve: %v", err)
		os.Exit(1)
	}
}
