package jpe

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/nasa-jpl/cpsc/comm"
)

// MockController is a TCP peer that answers the CPSC protocol the way a
// controller does.  It serves one command per connection and keeps every
// line it received.
type MockController struct {
	sync.Mutex
	ln       net.Listener
	received []string
	moving   bool
	wg       sync.WaitGroup

	reply  func(cmd string) []byte
	silent bool
}

// NewMockController starts a mock controller listening on addr, e.g.
// "127.0.0.1:0" for any free port
func NewMockController(addr string) (*MockController, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	m := &MockController{ln: ln}
	m.wg.Add(1)
	go m.serve()
	return m, nil
}

// Addr returns the address the mock is listening at
func (m *MockController) Addr() string {
	return m.ln.Addr().String()
}

// HostPort splits Addr for use with NewCPSCPort
func (m *MockController) HostPort() (string, int) {
	tcp := m.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

// SetReply overrides the built in replies.  f is given the command without
// terminator and returns the raw bytes to send back, terminator included.
// Returning nil sends nothing; the connection is then closed.
func (m *MockController) SetReply(f func(cmd string) []byte) {
	m.Lock()
	defer m.Unlock()
	m.reply = f
}

// SetSilent makes the mock read commands but never answer or hang up
func (m *MockController) SetSilent(b bool) {
	m.Lock()
	defer m.Unlock()
	m.silent = b
}

// Received returns a copy of the commands seen so far
func (m *MockController) Received() []string {
	m.Lock()
	defer m.Unlock()
	out := make([]string, len(m.received))
	copy(out, m.received)
	return out
}

// Moving returns true between a MOV and the next STP
func (m *MockController) Moving() bool {
	m.Lock()
	defer m.Unlock()
	return m.moving
}

// Close stops listening.  Connections still open are left to finish.
func (m *MockController) Close() error {
	err := m.ln.Close()
	m.wg.Wait()
	return err
}

func (m *MockController) serve() {
	defer m.wg.Done()
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		go m.handle(conn)
	}
}

func (m *MockController) handle(conn net.Conn) {
	line, err := comm.ReadLine(conn)
	if err != nil {
		conn.Close()
		return
	}
	cmd := string(line)
	m.Lock()
	m.received = append(m.received, cmd)
	reply, silent := m.reply, m.silent
	m.Unlock()
	if silent {
		// hold the connection open until the client gives up
		buf := make([]byte, 1)
		conn.Read(buf)
		conn.Close()
		return
	}
	defer conn.Close()

	var resp []byte
	if reply != nil {
		resp = reply(cmd)
	} else {
		resp = append([]byte(m.respond(cmd)), comm.CRLF...)
	}
	if resp != nil {
		conn.Write(resp)
	}
}

// respond mimics the controller's own replies
func (m *MockController) respond(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "Error: empty command"
	}
	m.Lock()
	defer m.Unlock()
	switch fields[0] {
	case "MOV":
		if len(fields) != 9 {
			return "Error: MOV takes 8 arguments"
		}
		p := MoveParams{}
		for i, dst := range []*int{&p.Direction, &p.Frequency, nil, &p.Steps, &p.Temperature} {
			if dst == nil {
				continue
			}
			v, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return "Error: " + err.Error()
			}
			*dst = v
		}
		if err := p.Validate(); err != nil {
			return "Error: " + err.Error()
		}
		m.moving = true
		return "OK"
	case "STP":
		m.moving = false
		return "OK"
	default:
		return "Error: unknown command " + fields[0]
	}
}
