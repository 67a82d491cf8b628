// Package ws carries session envelopes over WebSockets. A Server hosts any
// number of rooms on one HTTP listener; a Dialer connects participants to them.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"quizroom/internal/domain"
	"quizroom/internal/transport"
)

const (
	qrSize  = 320
	timeout = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	// PublicURL is the externally reachable base URL used in share links. When
	// empty it is derived from each request.
	PublicURL string
	Version   string
	Logger    *slog.Logger
}

// Server binds room codes to listeners and upgrades /rooms/:code/ws requests
// into channels for the matching room.
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	seq      atomic.Uint64

	mu    sync.Mutex
	rooms map[string]*listener
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.PublicURL = strings.TrimSuffix(opts.PublicURL, "/")
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*listener),
	}
}

// Listen binds a room code on this server.
func (s *Server) Listen(address string) (transport.Listener, error) {
	code, err := domain.NormalizeRoomCode(address)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; ok {
		return nil, fmt.Errorf("listen %s: %w", code, transport.ErrAddressInUse)
	}
	l := &listener{server: s, addr: code, incoming: make(chan transport.Channel, 64)}
	s.rooms[code] = l
	return l, nil
}

func (s *Server) room(code string) (*listener, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rooms[code]
	return l, ok
}

func (s *Server) unbind(l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[l.addr] == l {
		delete(s.rooms, l.addr)
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := httprouter.New()
	mux.GET("/rooms/:code/ws", s.serveWS)
	mux.GET("/rooms/:code/qr", s.serveQR)
	mux.GET("/join/:code", s.serveJoin)
	mux.GET("/healthz", s.serveHealth)
	mux.GET("/version", s.serveVersion)
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.Error("handler panic", "path", r.URL.Path, "panic", v)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return mux
}

// Serve runs the HTTP server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: timeout,
	}
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code, err := domain.NormalizeRoomCode(ps.ByName("code"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	l, ok := s.room(code)
	if !ok {
		http.Error(w, domain.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "room", code, "error", err)
		return
	}
	id := "ws-" + strconv.FormatUint(s.seq.Add(1), 10) + "@" + realIP(r)
	c := newConn(id, ws, s.logger)
	c.start()
	if err := l.offer(c); err != nil {
		s.logger.Warn("room refused connection", "room", code, "conn", id, "error", err)
		c.Close()
		return
	}
	s.logger.Debug("ws connected", "room", code, "conn", id)
}

func (s *Server) joinURL(r *http.Request, code string) string {
	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + code
}

func (s *Server) serveQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code, err := domain.NormalizeRoomCode(ps.ByName("code"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	png, err := qrcode.Encode(s.joinURL(r, code), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) serveJoin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code, err := domain.NormalizeRoomCode(ps.ByName("code"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.room(code); !ok {
		http.Error(w, domain.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}
	base := strings.TrimSuffix(s.joinURL(r, code), "/join/"+code)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Room %s is open.\nJoin with: quizroom join --server %s --room %s --name <you>\n", code, base, code)
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) serveVersion(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "quizroom "+s.opts.Version+"\n")
}

type listener struct {
	server   *Server
	addr     string
	mu       sync.Mutex
	closed   bool
	incoming chan transport.Channel
}

func (l *listener) Addr() string { return l.addr }
func (l *listener) Incoming() <-chan transport.Channel { return l.incoming }

func (l *listener) offer(c transport.Channel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return domain.ErrRoomNotFound
	}
	select {
	case l.incoming <- c:
		return nil
	default:
		return transport.ErrBackpressure
	}
}

func (l *listener) Close() error {
	l.server.unbind(l)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.incoming)
	}
	return nil
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}
