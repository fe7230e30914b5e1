// Transport layer: a reliable-ordered byte-stream abstraction over TCP,
// adapted from the teacher's internal/network/transport.go. The teacher
// left framing as a TODO ("Length prefix for framing, then payload");
// this fills that in with a 4-byte little-endian length prefix per
// frame, so every Send/Recv already exchanges whole protocol messages
// rather than raw stream chunks.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
)

// Transport abstracts the network connection, mirroring the teacher's
// network.Transport interface.
type Transport interface {
	Connect(addr string) error
	Accept() (Connection, error)
	Close() error
}

// Connection represents a single client-server connection carrying
// whole, length-prefixed protocol messages.
type Connection interface {
	// Send writes one complete message, framed with a length prefix.
	Send(data []byte) error
	// Recv blocks for one complete framed message.
	Recv() ([]byte, error)
	Close() error
	RemoteAddr() net.Addr
}

// maxFrameLen bounds a single frame so a corrupt or hostile peer cannot
// force an unbounded allocation; this is deliberately generous relative
// to the protocol's own MaxLength varint ceiling.
const maxFrameLen = 1 << 20

// TCPTransport implements Transport over TCP.
type TCPTransport struct {
	listener net.Listener
	conn     net.Conn
}

// NewTCPTransport creates a TCP transport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

// Listen starts listening on the given address (server side).
func (t *TCPTransport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	t.listener = ln
	return nil
}

// Connect dials a server (client side).
func (t *TCPTransport) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

// Accept accepts the next incoming connection (server side).
func (t *TCPTransport) Accept() (Connection, error) {
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewTCPConnection(conn), nil
}

// Close closes whichever side of the transport is active.
func (t *TCPTransport) Close() error {
	if t.listener != nil {
		return t.listener.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// Conn returns the client-mode connection established by Connect.
func (t *TCPTransport) Conn() Connection {
	if t.conn == nil {
		return nil
	}
	return NewTCPConnection(t.conn)
}

// TCPConnection wraps a TCP connection with length-prefixed message
// framing. The frame length itself is a plain 4-byte little-endian
// uint32 rather than the protocol varint: framing must be decodable
// before any protocol-level parsing happens, so it deliberately does not
// depend on the varint continuation scheme used for in-message fields.
type TCPConnection struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewTCPConnection wraps conn for framed Send/Recv.
func NewTCPConnection(conn net.Conn) *TCPConnection {
	return &TCPConnection{conn: conn, r: bufio.NewReader(conn)}
}

func (c *TCPConnection) Send(data []byte) error {
	if len(data) > maxFrameLen {
		return fmt.Errorf("wire: outbound frame too large (%d bytes)", len(data))
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *TCPConnection) Recv() ([]byte, error) {
	var hdr [4]byte
	if _, err := fillBuf(c.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("wire: inbound frame too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := fillBuf(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func fillBuf(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *TCPConnection) Close() error { return c.conn.Close() }

func (c *TCPConnection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
