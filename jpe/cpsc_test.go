package jpe

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nasa-jpl/cpsc/comm"
)

func startMock(t *testing.T) *MockController {
	t.Helper()
	m, err := NewMockController("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func dialMock(t *testing.T, m *MockController, timeout time.Duration) *CPSC {
	t.Helper()
	host, port := m.HostPort()
	c, err := NewCPSCPort(host, port, timeout)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestMoveCommandFormat(t *testing.T) {
	cmd := MoveCommand(MoveParams{Direction: 1, Frequency: 300, Steps: 0, Temperature: 300})
	expected := "MOV 1 1 300 100 0 300 CLA2601 1"
	if cmd != expected {
		t.Errorf("expected %q got %q", expected, cmd)
	}
	cmd = MoveCommand(MoveParams{Direction: 0, Frequency: 1, Steps: 5000, Temperature: 4})
	expected = "MOV 1 0 1 100 5000 4 CLA2601 1"
	if cmd != expected {
		t.Errorf("expected %q got %q", expected, cmd)
	}
}

func TestStopCommandFormat(t *testing.T) {
	if StopCommand() != "STP 1" {
		t.Errorf("expected STP 1 got %q", StopCommand())
	}
}

func TestMoveExactBytesAndReply(t *testing.T) {
	m := startMock(t)
	var raw []byte
	rawc := make(chan []byte, 1)
	m.SetReply(func(cmd string) []byte {
		rawc <- append([]byte(cmd), comm.CRLF...)
		return []byte("OK\r\n")
	})
	c := dialMock(t, m, time.Second)
	resp, err := c.Move(1, 300, 0, 300)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "OK" {
		t.Errorf("expected OK got %q", resp)
	}
	raw = <-rawc
	if string(raw) != "MOV 1 1 300 100 0 300 CLA2601 1\r\n" {
		t.Errorf("wire bytes were %q", raw)
	}
	if !c.Closed() {
		t.Error("session should be closed after a move")
	}
}

func TestMoveSendsExactlyOneFrame(t *testing.T) {
	// capture everything the client writes, not just the first line
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := comm.ReadLine(conn)
		conn.Write([]byte("OK\r\n"))
		// the client closes after the reply, so anything else shows up here
		rest := make([]byte, 64)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _ := conn.Read(rest)
		got <- append(append(line, comm.CRLF...), rest[:n]...)
	}()
	tcp := ln.Addr().(*net.TCPAddr)
	c, err := NewCPSCPort(tcp.IP.String(), tcp.Port, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Move(1, 300, 0, 300); err != nil {
		t.Fatal(err)
	}
	if b := <-got; string(b) != "MOV 1 1 300 100 0 300 CLA2601 1\r\n" {
		t.Errorf("client sent %q", b)
	}
}

func TestStopReply(t *testing.T) {
	m := startMock(t)
	m.SetReply(func(cmd string) []byte {
		if cmd != "STP 1" {
			return []byte("WRONG\r\n")
		}
		return []byte("STOPPED\r\n")
	})
	c := dialMock(t, m, time.Second)
	resp, err := c.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if resp != "STOPPED" {
		t.Errorf("expected STOPPED got %q", resp)
	}
}

func TestMockTracksMotion(t *testing.T) {
	m := startMock(t)
	c := dialMock(t, m, time.Second)
	if _, err := c.Move(0, 600, 5000, 0); err != nil {
		t.Fatal(err)
	}
	if !m.Moving() {
		t.Error("mock should be moving after MOV")
	}
	c = dialMock(t, m, time.Second)
	resp, err := c.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if resp != "OK" || m.Moving() {
		t.Errorf("expected stop to halt the mock, reply %q moving %v", resp, m.Moving())
	}
}

func TestIncompleteResponse(t *testing.T) {
	m := startMock(t)
	m.SetReply(func(string) []byte { return []byte("PART") })
	c := dialMock(t, m, time.Second)
	resp, err := c.Stop()
	if !errors.Is(err, comm.ErrIncompleteResponse) {
		t.Fatalf("expected ErrIncompleteResponse, got %v", err)
	}
	if resp != "" {
		t.Errorf("partial text leaked: %q", resp)
	}
}

func TestNonASCIIReply(t *testing.T) {
	m := startMock(t)
	m.SetReply(func(string) []byte { return []byte{'O', 0xFF, '\r', '\n'} })
	c := dialMock(t, m, time.Second)
	_, err := c.Stop()
	if !errors.Is(err, comm.ErrNotASCII) {
		t.Fatalf("expected ErrNotASCII, got %v", err)
	}
}

func TestReadTimeoutOnSilentPeer(t *testing.T) {
	m := startMock(t)
	m.SetSilent(true)
	c := dialMock(t, m, 100*time.Millisecond)
	start := time.Now()
	_, err := c.Stop()
	if !errors.Is(err, comm.ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("read took %v, deadline not honored", elapsed)
	}
}

func TestSessionIsSingleUse(t *testing.T) {
	m := startMock(t)
	c := dialMock(t, m, time.Second)
	if _, err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	before := len(m.Received())
	_, err := c.Move(1, 300, 0, 300)
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	_, err = c.Stop()
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if after := len(m.Received()); after != before {
		t.Errorf("closed session reached the controller, %d commands before, %d after", before, after)
	}
}

func TestZeroValueNotConnected(t *testing.T) {
	c := &CPSC{}
	_, err := c.Stop()
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestInvalidMoveSendsNothing(t *testing.T) {
	m := startMock(t)
	c := dialMock(t, m, time.Second)
	_, err := c.Move(2, 300, 0, 300)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	var pe *ParameterError
	if !errors.As(err, &pe) || pe.Name != "direction" {
		t.Errorf("expected a direction ParameterError, got %#v", err)
	}
	if !c.Closed() {
		t.Error("session should close after a rejected move")
	}
	time.Sleep(50 * time.Millisecond)
	if rx := m.Received(); len(rx) != 0 {
		t.Errorf("expected nothing sent, mock got %v", rx)
	}
}

func TestValidateRanges(t *testing.T) {
	ok := DefaultMoveParams()
	tests := []struct {
		name  string
		mod   func(*MoveParams)
		field string
	}{
		{"direction low", func(p *MoveParams) { p.Direction = -1 }, "direction"},
		{"direction high", func(p *MoveParams) { p.Direction = 2 }, "direction"},
		{"frequency zero", func(p *MoveParams) { p.Frequency = 0 }, "frequency"},
		{"frequency high", func(p *MoveParams) { p.Frequency = 601 }, "frequency"},
		{"steps negative", func(p *MoveParams) { p.Steps = -1 }, "step"},
		{"steps high", func(p *MoveParams) { p.Steps = 5001 }, "step"},
		{"temperature negative", func(p *MoveParams) { p.Temperature = -1 }, "temperature"},
		{"temperature high", func(p *MoveParams) { p.Temperature = 301 }, "temperature"},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("defaults should be valid, got %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ok
			tt.mod(&p)
			err := p.Validate()
			var pe *ParameterError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParameterError, got %v", err)
			}
			if pe.Name != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, pe.Name)
			}
		})
	}
	edges := []MoveParams{
		{Direction: 0, Frequency: 1, Steps: 0, Temperature: 0},
		{Direction: 1, Frequency: 600, Steps: 5000, Temperature: 300},
	}
	for _, p := range edges {
		if err := p.Validate(); err != nil {
			t.Errorf("%+v should be valid, got %v", p, err)
		}
	}
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	tcp := ln.Addr().(*net.TCPAddr)
	ln.Close()
	_, err = NewCPSCPort(tcp.IP.String(), tcp.Port, time.Second)
	if !errors.Is(err, comm.ErrConnect) {
		t.Errorf("expected ErrConnect, got %v", err)
	}
}

func TestConnectTimeout(t *testing.T) {
	// 192.0.2.0/24 is reserved for documentation and never answers
	_, err := NewCPSC("192.0.2.1", 50*time.Millisecond)
	if errors.Is(err, comm.ErrConnect) {
		t.Skipf("no route to test network, cannot provoke a timeout: %v", err)
	}
	if !errors.Is(err, comm.ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", err)
	}
}

func TestStatusLine(t *testing.T) {
	s := StatusLine(StopStatusPrefix, "OK")
	if s != "Stopping the stage...: OK" {
		t.Errorf("got %q", s)
	}
}
