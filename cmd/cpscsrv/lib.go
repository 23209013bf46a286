package main

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/nasa-jpl/cpsc/generichttp"
	"github.com/nasa-jpl/cpsc/jpe"
	"github.com/nasa-jpl/cpsc/server/middleware/locker"
	"github.com/nasa-jpl/cpsc/util"
)

// Config holds the setup of the server and the controller behind it
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the URL the routes are served under
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Controller is the IP address of the CPSC
	Controller string `yaml:"Controller" koanf:"Controller"`

	// Timeout is the connect, and separately the reply, timeout in seconds
	Timeout float64 `yaml:"Timeout" koanf:"Timeout"`

	// MinInterval is the least time between sessions, in seconds
	MinInterval float64 `yaml:"MinInterval" koanf:"MinInterval"`

	// Mock replaces the controller with a simulated one on loopback
	Mock bool `yaml:"Mock" koanf:"Mock"`
}

// DefaultConfig is used for anything the config file leaves out
func DefaultConfig() Config {
	return Config{
		Addr:        ":8000",
		Endpoint:    "/cpsc",
		Controller:  "192.168.1.10",
		Timeout:     1,
		MinInterval: 0.1,
	}
}

// BuildMux makes the router for c.  The cleanup func releases the mock
// controller, if one was started.
func BuildMux(c Config) (chi.Router, func(), error) {
	cleanup := func() {}
	timeout := util.SecsToDuration(c.Timeout)
	host, port := c.Controller, jpe.DefaultPort
	if c.Mock {
		m, err := jpe.NewMockController("127.0.0.1:0")
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { m.Close() }
		host, port = m.HostPort()
		log.Println("serving a mock controller at", m.Addr())
	} else if net.ParseIP(host) == nil {
		return nil, cleanup, fmt.Errorf("controller address %q is not a valid IP address", host)
	}
	dial := func() (*jpe.CPSC, error) {
		return jpe.NewCPSCPort(host, port, timeout)
	}

	wrap := jpe.NewHTTPWrapper(dial, util.SecsToDuration(c.MinInterval))
	lock := locker.New("/stop")
	locker.Inject(wrap, lock)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(middleware.Timeout(requestTimeout(c)))
	generichttp.SubMux(root, c.Endpoint, wrap, lock.Check)
	return root, cleanup, nil
}

// requestTimeout covers a wait for the limiter, a connect and a reply
func requestTimeout(c Config) time.Duration {
	return 2*util.SecsToDuration(c.Timeout) + util.SecsToDuration(c.MinInterval) + time.Second
}
