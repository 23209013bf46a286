// Command cpsc moves or stops a piezo linear actuator attached to a JPE Cryo
// Positioning Systems Controller.
//
// Usage:
//
//	cpsc -a 192.168.1.10 [-d 1] [-f 300] [-s 0] [-t 300]
//	cpsc -a 192.168.1.10 --stop
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/cpsc/comm"
	"github.com/nasa-jpl/cpsc/jpe"
	"github.com/nasa-jpl/cpsc/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// connect is swapped out in tests
	connect = jpe.NewCPSC
)

// Options holds everything the command line can set
type Options struct {
	Address     string  `koanf:"address"`
	Stop        bool    `koanf:"stop"`
	Direction   int     `koanf:"direction"`
	Frequency   int     `koanf:"frequency"`
	Step        int     `koanf:"step"`
	Temperature int     `koanf:"temperature"`
	Timeout     float64 `koanf:"timeout"`
	Progress    bool    `koanf:"progress"`
	Version     bool    `koanf:"version"`
}

func defaultOptions() Options {
	p := jpe.DefaultMoveParams()
	return Options{
		Direction:   p.Direction,
		Frequency:   p.Frequency,
		Step:        p.Steps,
		Temperature: p.Temperature,
		Timeout:     1,
	}
}

// stopValue backs both --stop and --no-stop so the last one given wins
type stopValue struct {
	dst *bool
	set bool
}

func (s *stopValue) Type() string { return "bool" }

func (s *stopValue) String() string {
	if s.dst == nil {
		return "false"
	}
	return strconv.FormatBool(*s.dst)
}

func (s *stopValue) Set(v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	// --no-stop=true means stop=false
	*s.dst = b == s.set
	return nil
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	def := defaultOptions()
	fs := pflag.NewFlagSet("cpsc", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintln(out, "cpsc sends a move or stop command to a JPE Cryo Positioning Systems Controller\n\nUsage:\n\tcpsc -a <ip> [flags]\n\nFlags:")
		fs.PrintDefaults()
	}
	fs.StringP("address", "a", "", "IP address of the JPE CAB1-115 unit (required)")
	stop := new(bool)
	fs.VarPF(&stopValue{dst: stop, set: true}, "stop", "", "immediately stop the linear actuator").NoOptDefVal = "true"
	fs.VarPF(&stopValue{dst: stop, set: false}, "no-stop", "", "move instead of stopping").NoOptDefVal = "true"
	fs.IntP("direction", "d", def.Direction, "direction, 1 for positive movement and 0 for negative movement")
	fs.IntP("frequency", "f", def.Frequency, "frequency, 1[Hz] to 600[Hz]")
	fs.IntP("step", "s", def.Step, "number of actuation steps, 0 to 5000, where 0 is used for infinite move")
	fs.IntP("temperature", "t", def.Temperature, "temperature of the actuator environment, 0[K] to 300[K]")
	fs.Float64("timeout", def.Timeout, "seconds to wait for the connection, and then for the reply")
	fs.Bool("progress", false, "show a spinner while waiting for the controller")
	fs.Bool("version", false, "print the version and exit")
	return fs
}

func parseOptions(args []string, out io.Writer) (Options, error) {
	opts := Options{}
	fs := newFlagSet(out)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultOptions(), "koanf"), nil); err != nil {
		return opts, err
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return opts, err
	}
	err := k.Unmarshal("", &opts)
	return opts, err
}

// await runs op, with a spinner on w if asked for
func await(progress bool, w io.Writer, msg string, op func() (string, error)) (string, error) {
	if !progress {
		return op()
	}
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		Writer:            w,
	})
	if err != nil {
		return op()
	}
	spinner.Start()
	resp, err := op()
	if err != nil {
		spinner.StopFail()
	} else {
		spinner.Stop()
	}
	return resp, err
}

func reportConnect(logger *log.Logger, err error) int {
	if errors.Is(err, comm.ErrConnectTimeout) {
		logger.Println("Timeout error occurred")
	} else {
		logger.Println(err)
	}
	return 1
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "cpsc: ", 0)
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		logger.Println(err)
		return 1
	}
	if opts.Version {
		fmt.Fprintf(stdout, "cpsc version %v\n", Version)
		return 0
	}
	if opts.Address == "" {
		logger.Println("the --address/-a flag is required")
		return 1
	}
	if net.ParseIP(opts.Address) == nil {
		logger.Printf("%q is not a valid IP address", opts.Address)
		return 1
	}
	if opts.Timeout <= 0 {
		logger.Println("timeout must be greater than zero")
		return 1
	}
	timeout := util.SecsToDuration(opts.Timeout)

	if opts.Stop {
		c, err := connect(opts.Address, timeout)
		if err != nil {
			return reportConnect(logger, err)
		}
		defer c.Close()
		fmt.Fprintln(stdout, "Stop command executed")
		resp, err := await(opts.Progress, stderr, "stopping", c.Stop)
		if err != nil {
			logger.Println(err)
			return 1
		}
		fmt.Fprintln(stdout, jpe.StatusLine(jpe.StopStatusPrefix, resp))
		return 0
	}

	p := jpe.MoveParams{
		Direction:   opts.Direction,
		Frequency:   opts.Frequency,
		Steps:       opts.Step,
		Temperature: opts.Temperature,
	}
	if err := p.Validate(); err != nil {
		logger.Println(err)
		return 1
	}
	c, err := connect(opts.Address, timeout)
	if err != nil {
		return reportConnect(logger, err)
	}
	defer c.Close()
	fmt.Fprintln(stdout, "Move command executed")
	fmt.Fprintf(stdout, "Direction:\t%d\nFrequency:\t%d[Hz]\nStep:\t\t%d\nTemperature:\t%d[K]\n",
		p.Direction, p.Frequency, p.Steps, p.Temperature)
	resp, err := await(opts.Progress, stderr, "moving", func() (string, error) { return c.MoveParams(p) })
	if err != nil {
		logger.Println(err)
		return 1
	}
	fmt.Fprintln(stdout, jpe.StatusLine(jpe.MoveStatusPrefix, resp))
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
