package jpe

import (
	"net"
	"strconv"
	"time"

	"github.com/nasa-jpl/cpsc/comm"
)

type sessionState int

const (
	unconnected sessionState = iota
	connected
	closed
)

// CPSC is one connect-send-receive-close session with a controller.
//
// It is not safe for concurrent use; it only ever carries one command.
type CPSC struct {
	// Addr is the host:port of the controller
	Addr string

	// Timeout bounds the connect and, separately, the exchange
	Timeout time.Duration

	conn  net.Conn
	state sessionState
}

// NewCPSC connects to the controller at ip on DefaultPort
func NewCPSC(ip string, timeout time.Duration) (*CPSC, error) {
	return NewCPSCPort(ip, DefaultPort, timeout)
}

// NewCPSCPort connects to the controller at host:port.  The error wraps
// comm.ErrConnectTimeout or comm.ErrConnect.
func NewCPSCPort(host string, port int, timeout time.Duration) (*CPSC, error) {
	c := &CPSC{
		Addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		Timeout: timeout,
	}
	conn, err := comm.TCPSetup(c.Addr, timeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.state = connected
	return c, nil
}

// Move commands the stage to move and returns the controller's reply.
// The parameters are checked before anything is sent.
func (c *CPSC) Move(dir, freq, steps, temp int) (string, error) {
	return c.MoveParams(MoveParams{Direction: dir, Frequency: freq, Steps: steps, Temperature: temp})
}

// MoveParams is Move with the parameters in a struct
func (c *CPSC) MoveParams(p MoveParams) (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		c.Close()
		return "", err
	}
	return c.exchange(MoveCommand(p))
}

// Stop halts the stage and returns the controller's reply
func (c *CPSC) Stop() (string, error) {
	return c.exchange(StopCommand())
}

// Raw sends an arbitrary command line and returns the reply
func (c *CPSC) Raw(cmd string) (string, error) {
	return c.exchange(cmd)
}

// Close the session.  It is safe to call more than once.
func (c *CPSC) Close() error {
	if c.state == closed {
		return nil
	}
	c.state = closed
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Closed returns true once the session has been used or closed
func (c *CPSC) Closed() bool {
	return c.state == closed
}

// exchange does the single write/read this session is allowed, then closes
func (c *CPSC) exchange(cmd string) (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}
	defer c.Close()
	if c.Timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.Timeout))
	}
	err := comm.WriteLine(c.conn, cmd)
	if err != nil {
		return "", err
	}
	resp, err := comm.ReadLine(c.conn)
	if err != nil {
		return "", err
	}
	return comm.Decode(resp)
}

func (c *CPSC) usable() error {
	switch c.state {
	case unconnected:
		return ErrNotConnected
	case closed:
		return ErrSessionClosed
	}
	return nil
}
