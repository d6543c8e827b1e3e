package stratum

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// maxCachedBytes is the buffer cap named in §4.G: a line that hasn't seen
// a newline after this many bytes closes the socket.
const maxCachedBytes = 512

// Connection is the per-socket state named in spec §3. It is owned
// exclusively by the Server for its lifetime and destroyed on disconnect;
// its mutable fields are touched only from within this connection's own
// message-processing step, serialised by the read loop, except for
// writes (guarded by writeMu, since the Coordinator's job fan-out writes
// concurrently with this connection's own response writes).
type Connection struct {
	writeMu sync.Mutex
	writer  *bufio.Writer
	socket  net.Conn

	RemoteAddr string
	Port       int

	ExtraNonce  []byte
	Difficulty  float64
	Encoding    Encoding
	ASICType    string
	Subscribed  bool
	cachedBytes []byte

	ConnectedAt  time.Time
	LastActivity time.Time

	Workers map[string]*Worker

	CloseReason string
	closed      bool
	closeOnce   sync.Once
}

func newConnection(socket net.Conn, port int) *Connection {
	return &Connection{
		writer:       bufio.NewWriter(socket),
		socket:       socket,
		RemoteAddr:   socket.RemoteAddr().String(),
		Port:         port,
		Difficulty:   0,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		Workers:      make(map[string]*Worker),
	}
}

// WriteLine serializes v to JSON and writes it terminated by \n. Safe for
// concurrent use: the Coordinator's fan-out and this connection's own
// response path may both call it.
func (c *Connection) WriteLine(v interface{}, marshal func(interface{}) []byte) error {
	raw := marshal(v)
	if raw == nil {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.Write(raw); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Close closes the underlying socket exactly once, recording reason.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closed = true
		c.CloseReason = reason
		_ = c.socket.Close()
	})
}

func (c *Connection) Closed() bool {
	return c.closed
}

// feed appends newly-read bytes to the cached buffer and extracts
// complete newline-terminated lines, implementing §4.G's framing rule. It
// returns the extracted lines (without the trailing newline) and whether
// the connection exceeded the cached-byte cap and must be closed.
func (c *Connection) feed(chunk []byte) (lines [][]byte, overflow bool) {
	c.cachedBytes = append(c.cachedBytes, chunk...)

	for {
		idx := indexByte(c.cachedBytes, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, c.cachedBytes[:idx])
		lines = append(lines, line)
		c.cachedBytes = c.cachedBytes[idx+1:]
	}

	if len(c.cachedBytes) > maxCachedBytes {
		return lines, true
	}
	return lines, false
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}
