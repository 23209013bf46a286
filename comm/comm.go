/*Package comm provides line-oriented communication with lab hardware over TCP.

Most usages of this package will boil down to:
	1.  open a connection with TCPSetup, which bounds the connect attempt
	2.  set a deadline on the connection covering the whole exchange
	3.  WriteLine the command, ReadLine the reply
	4.  Decode the reply into ASCII text and close the connection

A minimal example is provided below for a controller that responds to
"VER?" with its firmware version, terminated by CR LF

	func Version(addr string) (string, error) {
		conn, err := comm.TCPSetup(addr, time.Second)
		if err != nil {
			return "", err
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(time.Second))
		if err := comm.WriteLine(conn, "VER?"); err != nil {
			return "", err
		}
		resp, err := comm.ReadLine(conn)
		if err != nil {
			return "", err
		}
		return comm.Decode(resp)
	}
*/
package comm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// ChunkSize is the number of bytes requested from the connection per read
const ChunkSize = 32

var (
	// CRLF terminates every line in both directions
	CRLF = []byte{'\r', '\n'}

	// ErrConnectTimeout is generated when a connection is not established
	// within the allotted time
	ErrConnectTimeout = errors.New("connection timeout")

	// ErrConnect is generated for any other failure to connect, e.g. refused,
	// unreachable or an unresolvable host
	ErrConnect = errors.New("connection error")

	// ErrIncompleteResponse is generated when the remote closes the connection
	// before a full line has arrived
	ErrIncompleteResponse = errors.New("connection closed before terminator was received")

	// ErrReadTimeout is generated when the read deadline expires before a full
	// line has arrived
	ErrReadTimeout = errors.New("read timeout")

	// ErrNotASCII is generated when text to send or a reply holds non-ASCII bytes
	ErrNotASCII = errors.New("non-ASCII data")
)

// TCPSetup opens a new TCP connection with a timeout on connect.
// The error wraps ErrConnectTimeout or ErrConnect.
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w to %s: %v", ErrConnectTimeout, addr, err)
		}
		return nil, fmt.Errorf("%w to %s: %v", ErrConnect, addr, err)
	}
	return conn, nil
}

// WriteLine appends CR LF to msg and writes it in a single call
func WriteLine(w io.Writer, msg string) error {
	if !IsASCII([]byte(msg)) {
		return fmt.Errorf("%w in command %q", ErrNotASCII, msg)
	}
	b := make([]byte, 0, len(msg)+len(CRLF))
	b = append(b, msg...)
	b = append(b, CRLF...)
	_, err := w.Write(b)
	return err
}

// ReadLine reads ChunkSize bytes at a time until CR LF appears in what has
// been received, and returns everything before the first CR LF.
//
// If the remote closes first, the partial data is discarded and the error
// wraps ErrIncompleteResponse.  An expired deadline wraps ErrReadTimeout.
func ReadLine(r io.Reader) ([]byte, error) {
	var (
		buf   []byte
		chunk = make([]byte, ChunkSize)
	)
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if idx := bytes.Index(buf, CRLF); idx >= 0 {
			return buf[:idx], nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w after %d bytes", ErrIncompleteResponse, len(buf))
			}
			if isTimeout(err) {
				return nil, fmt.Errorf("%w after %d bytes: %v", ErrReadTimeout, len(buf), err)
			}
			return nil, err
		}
	}
}

// Decode strips trailing CR and LF bytes and returns the rest as text,
// provided it is pure ASCII
func Decode(b []byte) (string, error) {
	b = bytes.TrimRight(b, "\r\n")
	if !IsASCII(b) {
		return "", fmt.Errorf("%w in reply %q", ErrNotASCII, b)
	}
	return string(b), nil
}

// IsASCII returns true if no byte in b has the high bit set
func IsASCII(b []byte) bool {
	for _, c := range b {
		if c > 0x7F {
			return false
		}
	}
	return true
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
