// Package server accepts socket clients and feeds their commands to the
// dispatcher.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/andyk/termmux/internal/dispatch"
	"github.com/andyk/termmux/internal/hub"
)

const (
	// writeWait bounds a single outbound write to a client.
	writeWait = 10 * time.Second

	// maxLineSize bounds one inbound command line.
	maxLineSize = 1024 * 1024
)

// Server owns the TCP listener for the socket protocol. Inbound messages are
// newline-delimited JSON commands; outbound messages are observation lines
// broadcast through the hub.
type Server struct {
	addr       string
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	listener net.Listener
}

// New creates a server for the given host:port.
func New(addr string, h *hub.Hub, d *dispatch.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:       addr,
		hub:        h,
		dispatcher: d,
		logger:     logger,
	}
}

// Listen binds the listening socket. A bind failure is fatal to the daemon.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("listening", zap.String("addr", s.addr))
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts clients until ctx is cancelled or the listener closes.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		client := hub.NewClient(&tcpConn{conn: conn})
		s.hub.Register(client)
		s.logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

		go s.readLoop(conn, client)
	}
}

// readLoop reads one command per line until the client disconnects.
// Disconnecting removes only this client; sessions are unaffected. A line
// over maxLineSize is malformed input: it is logged and skipped, never a
// reason to close the connection.
func (s *Server) readLoop(conn net.Conn, client *hub.Client) {
	defer func() {
		s.hub.Unregister(client)
		conn.Close()
		s.logger.Info("client disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}()

	reader := bufio.NewReaderSize(conn, maxLineSize)
	for {
		line, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			s.logger.Warn("dropping oversized line",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Int("limit", maxLineSize))
			for err == bufio.ErrBufferFull {
				_, err = reader.ReadSlice('\n')
			}
			if err != nil {
				return
			}
			continue
		}
		if err != nil {
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		s.dispatcher.HandleMessage(client, line)
	}
}

// tcpConn frames hub messages as newline-terminated writes on a byte stream.
type tcpConn struct {
	conn net.Conn
}

func (t *tcpConn) WriteMessage(data []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := t.conn.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}

func (t *tcpConn) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
