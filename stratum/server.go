package stratum

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/banning"
	"github.com/kaspa-pool/stratum-core/config"
	"github.com/kaspa-pool/stratum-core/utils"
)

var log = logging.Logger("stratum")

// MessageHandler dispatches parsed requests and disconnect notifications.
// The Coordinator implements it; the Server (Component G) only knows
// about framing and socket lifecycle, never about miner/job state.
type MessageHandler interface {
	HandleMessage(conn *Connection, req *Request)
	OnDisconnect(conn *Connection)
}

// Server is the TCP Server (spec §4.G): it listens on configured ports,
// frames lines, maintains per-socket state, and stamps lifecycle events.
type Server struct {
	rootOpts    *config.Options
	stratumOpts *config.StratumOptions
	handler     MessageHandler
	banner      *banning.Manager

	mu          sync.Mutex
	listeners   []net.Listener
	connections map[*Connection]struct{}

	closing bool
}

func NewServer(rootOpts *config.Options, handler MessageHandler, banner *banning.Manager) *Server {
	return &Server{
		rootOpts:    rootOpts,
		stratumOpts: rootOpts.Stratum,
		handler:     handler,
		banner:      banner,
		connections: make(map[*Connection]struct{}),
	}
}

// Start binds every configured port and begins accepting connections,
// returning the ports that actually came up. Exits the process via
// log.Fatal only if none did.
func (s *Server) Start() (portsStarted []int) {
	for port, portOpts := range s.stratumOpts.Ports {
		var ln net.Listener
		var err error

		if portOpts != nil && portOpts.TLS != nil {
			ln, err = tls.Listen("tcp", ":"+strconv.Itoa(port), portOpts.TLS.ToTLSConfig())
		} else {
			ln, err = net.Listen("tcp", ":"+strconv.Itoa(port))
		}

		if err != nil {
			log.Error("failed to listen on port ", port, ": ", err)
			continue
		}

		portsStarted = append(portsStarted, port)
		s.listeners = append(s.listeners, ln)

		go s.acceptLoop(ln, port)
	}

	if len(portsStarted) == 0 {
		log.Fatal("no stratum port listened")
	}

	return portsStarted
}

func (s *Server) acceptLoop(ln net.Listener, port int) {
	for {
		socket, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			log.Error("accept error on port ", port, ": ", err)
			continue
		}

		log.Info("new connection from ", socket.RemoteAddr().String(), " on port ", port)
		go s.serve(socket, port)
	}
}

func (s *Server) serve(socket net.Conn, port int) {
	conn := newConnection(socket, port)

	s.mu.Lock()
	s.connections[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.connections, conn)
		s.mu.Unlock()
		s.handler.OnDisconnect(conn)
		_ = socket.Close()
	}()

	if s.banner != nil && s.banner.CheckBan(conn.RemoteAddr) {
		conn.Close("banned")
		return
	}

	buf := make([]byte, 4096)
	proxyChecked := !s.rootOpts.TCPProxyProtocol

	for {
		if s.stratumOpts != nil {
			_ = socket.SetReadDeadline(time.Now().Add(time.Duration(s.rootOpts.ConnectionTimeout) * time.Second))
		}

		n, err := socket.Read(buf)
		if err != nil {
			conn.Close("read error: " + err.Error())
			return
		}

		conn.LastActivity = time.Now()
		chunk := buf[:n]

		if !proxyChecked {
			proxyChecked = true
			if bytes.HasPrefix(chunk, []byte("PROXY")) {
				s.applyProxyHeader(conn, chunk)
				continue
			}
			log.Warn("tcpProxyProtocol enabled but no PROXY header from ", conn.RemoteAddr)
		}

		lines, overflow := conn.feed(chunk)
		for _, line := range lines {
			if len(line) == 0 {
				continue
			}
			s.handleLine(conn, line)
			if conn.Closed() {
				return
			}
		}

		if overflow {
			log.Warn("oversized unterminated line from ", conn.RemoteAddr, ", closing")
			conn.Close("cached buffer overflow")
			return
		}

		if s.banner != nil && s.banner.CheckBan(conn.RemoteAddr) {
			conn.Close("banned")
			return
		}
	}
}

func (s *Server) applyProxyHeader(conn *Connection, line []byte) {
	parts := bytes.Split(line, []byte(" "))
	if len(parts) < 3 {
		return
	}
	conn.RemoteAddr = string(parts[2])
}

func (s *Server) handleLine(conn *Connection, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil || !req.Valid() {
		log.Warn("malformed message from ", conn.RemoteAddr, ": ", string(line))
		s.writeError(conn, nil, 20, "unknown")
		conn.Close("malformed message")
		return
	}

	log.Debug("handling message from ", conn.RemoteAddr, ": ", string(line))
	s.handler.HandleMessage(conn, &req)
}

func (s *Server) writeError(conn *Connection, id json.RawMessage, code int, message string) {
	_ = conn.WriteLine(&Response{
		ID:     id,
		Result: nil,
		Error:  &StratumError{Code: code, Message: message},
	}, func(v interface{}) []byte { return utils.Jsonify(v) })
}

// Broadcast calls fn for every live connection. The Coordinator's job
// fan-out and rebroadcast ticker do not use it; they walk the
// Coordinator's own subscriber set.
func (s *Server) Broadcast(fn func(conn *Connection)) {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if c.Closed() {
			continue
		}
		fn(c)
	}
}

// Shutdown stops accepting new connections and closes every live socket,
// recording a shutdown close reason, per §5's cancellation contract.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closing = true
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close("server shutdown")
	}
}
