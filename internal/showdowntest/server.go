// Package showdowntest runs an in-process Showdown server for tests: a
// websocket endpoint speaking the SockJS framing, the server info document and
// the HTTP action endpoint.
package showdowntest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/protocol"
)

var errClosed = errors.New(showdown.ErrMsgConnectionClosed)

// OnConnectFn is called for every accepted connection, after the greeting has
// been queued and before the read loop starts.
type OnConnectFn = func(p *Peer)

// Config is the behaviour of a Server.
type Config struct {
	// Challenge is sent as "|challstr|{ChallengeKeyID}|{Challenge}" right
	// after the open token. Nothing is sent when empty.
	ChallengeKeyID string
	Challenge      string
	// Accounts maps canonical user ids to passwords accepted by act=login.
	Accounts map[string]string
	// Flood limits frames per connection; connections over the limit are
	// closed with a policy violation. Zero disables the limit.
	Flood rate.Limit
	Burst int
	// Host and Port are returned by the server info document. They default
	// to the test server's own address.
	Host      string
	Port      int
	OnConnect OnConnectFn
}

// Server implements a fake Showdown server on top of httptest.
type Server struct {
	cfg      Config
	http     *httptest.Server
	upgrader websocket.Upgrader

	peers chan *Peer

	mu      sync.Mutex
	logins  []url.Values
	replays []url.Values
	all     []*Peer
}

// NewServer starts a server. Close it when done.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:   cfg,
		peers: make(chan *Peer, 16),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Get("/showdown/*", s.handleWebSocket)
	r.Get("/servers/{serverID}.json", s.handleServerInfo)
	r.Post("/action.php", s.handleAction)

	s.http = httptest.NewServer(r)
	return s
}

// Close shuts the server and every connection down.
func (s *Server) Close() {
	s.mu.Lock()
	peers := append([]*Peer(nil), s.all...)
	s.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	s.http.Close()
}

// Host returns "host:port" of the server.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.http.URL, "http://")
}

// WebsocketURL returns a SockJS style websocket URL on this server.
func (s *Server) WebsocketURL() string {
	return "ws://" + s.Host() + "/showdown/000/testtest/websocket"
}

// ActionURL returns the action endpoint.
func (s *Server) ActionURL() string {
	return s.http.URL + "/action.php"
}

// ServerInfoURL returns the server info template, with "{server_id}" left in.
func (s *Server) ServerInfoURL() string {
	return s.http.URL + "/servers/{server_id}.json"
}

// NextPeer waits for the next accepted connection.
func (s *Server) NextPeer(ctx context.Context) (*Peer, error) {
	select {
	case p := <-s.peers:
		return p, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for connection: %w", ctx.Err())
	}
}

// Logins returns the forms of every act=login request received.
func (s *Server) Logins() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.logins...)
}

// Replays returns the forms of every act=uploadreplay request received.
func (s *Server) Replays() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.replays...)
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	host, port := s.cfg.Host, s.cfg.Port
	if host == "" {
		h, p, _ := strings.Cut(s.Host(), ":")
		host = h
		fmt.Sscanf(p, "%d", &port)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name": chi.URLParam(r, "serverID"),
		"id":   chi.URLParam(r, "serverID"),
		"host": host,
		"port": port,
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	switch r.PostForm.Get("act") {
	case "login":
		s.mu.Lock()
		s.logins = append(s.logins, r.PostForm)
		s.mu.Unlock()

		name := r.PostForm.Get("name")
		want, ok := s.cfg.Accounts[showdown.Canonicalize(name)]
		if !ok || want != r.PostForm.Get("pass") || r.PostForm.Get("challenge") != s.cfg.Challenge {
			fmt.Fprint(w, `]{"actionsuccess":false,"assertion":";;Wrong password."}`)
			return
		}
		assertion := "assert-" + showdown.Canonicalize(name)
		fmt.Fprintf(w, `]{"actionsuccess":true,"assertion":%q,"curuser":{"loggedin":true,"username":%q}}`, assertion, name)

	case "uploadreplay":
		s.mu.Lock()
		s.replays = append(s.replays, r.PostForm)
		s.mu.Unlock()
		fmt.Fprint(w, "success")

	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(conn, s.cfg.Flood, s.cfg.Burst)
	s.mu.Lock()
	s.all = append(s.all, p)
	s.mu.Unlock()

	p.Send("o")
	if s.cfg.Challenge != "" {
		p.SendLines("", fmt.Sprintf("|challstr|%s|%s", s.cfg.ChallengeKeyID, s.cfg.Challenge))
	}
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(p)
	}

	select {
	case s.peers <- p:
	default:
	}

	go p.readLoop()
}

// Peer is the server side of one client connection.
type Peer struct {
	id       string
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	sendCh   chan []byte
	received chan string
	limiter  *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func newPeer(conn *websocket.Conn, flood rate.Limit, burst int) *Peer {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if flood > 0 {
		limiter = rate.NewLimiter(flood, burst)
	}

	p := &Peer{
		id:       uuid.New().String(),
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		sendCh:   make(chan []byte, 256),
		received: make(chan string, 256),
		limiter:  limiter,
	}
	go p.writePump()
	return p
}

// ID returns a unique identifier of the connection.
func (p *Peer) ID() string { return p.id }

// Done is closed when the connection ends.
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

// Send writes a raw frame such as "o" or "h".
func (p *Peer) Send(frame string) error {
	if p.ctx.Err() != nil {
		return errClosed
	}
	select {
	case p.sendCh <- []byte(frame):
		return nil
	case <-p.ctx.Done():
		return errClosed
	}
}

// SendLines writes one batch frame addressed to room. An empty room sends
// the lines without a room header, as the server does for global messages.
func (p *Peer) SendLines(room string, lines ...string) error {
	message := strings.Join(lines, "\n")
	if room != "" {
		message = ">" + room + "\n" + message
	}
	frame, err := protocol.EncodeFrame([]string{message})
	if err != nil {
		return err
	}
	return p.Send("a" + frame)
}

// Receive returns the next frame sent by the client.
func (p *Peer) Receive(ctx context.Context) (string, error) {
	select {
	case frame, ok := <-p.received:
		if !ok {
			return "", errClosed
		}
		return frame, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReceiveLines returns the next frame sent by the client, decoded.
func (p *Peer) ReceiveLines(ctx context.Context) ([]string, error) {
	frame, err := p.Receive(ctx)
	if err != nil {
		return nil, err
	}
	var lines []string
	if err := json.Unmarshal([]byte(frame), &lines); err != nil {
		return nil, fmt.Errorf("client frame %q: %w", frame, err)
	}
	return lines, nil
}

// Close drops the connection from the server side.
func (p *Peer) Close() {
	p.CloseWithCode(websocket.CloseGoingAway, "")
}

// CloseWithCode closes the connection with a close code and optional reason.
func (p *Peer) CloseWithCode(code int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	p.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	p.conn.Close()
}

func (p *Peer) writePump() {
	defer p.conn.Close()

	for {
		select {
		case frame := <-p.sendCh:
			p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Peer) readLoop() {
	defer func() {
		close(p.received)
		p.Close()
	}()

	p.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if p.limiter != nil && !p.limiter.Allow() {
			p.CloseWithCode(websocket.ClosePolicyViolation, "Rate limit exceeded")
			return
		}

		select {
		case p.received <- string(data):
		case <-p.ctx.Done():
			return
		}
	}
}
