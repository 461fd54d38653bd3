// Package brokertest runs an in-process NATS server with a WebSocket listener, for tests
// of the broker connection and the notification client.
//
// Clients reach the WebSocket port through a TCP proxy so tests can count dials, refuse
// new connections and drop live ones.
package brokertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// observerName is the client name of the server's own recording connection
const observerName = "brokertest"

// Published is a message received from a client
type Published struct {
	Subject string
	Data    []byte
}

// Client describes a connected client, as reported by the server
type Client struct {
	Name    string
	Lang    string
	Version string
	Subs    int
}

// Option configures a Server
type Option func(*Server)

// WithToken requires clients to present token
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithUserPass requires clients to present user and pass
func WithUserPass(user, pass string) Option {
	return func(s *Server) { s.user, s.pass = user, pass }
}

// Server is a broker for tests
type Server struct {
	// URL is the ws:// endpoint of the broker
	URL string

	ns       *server.Server
	observer *nats.Conn
	ln       net.Listener
	wsAddr   string

	token string
	user  string
	pass  string

	mu          sync.Mutex
	unavailable bool
	dials       int
	pipes       map[net.Conn]net.Conn
	published   []Published
}

// NewServer starts a broker that is shut down with the test
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{pipes: make(map[net.Conn]net.Conn)}
	for _, opt := range opts {
		opt(s)
	}

	wsPort := freePort(t)
	ns, err := server.NewServer(&server.Options{
		ServerName:    observerName,
		Host:          "127.0.0.1",
		Port:          server.RANDOM_PORT,
		NoLog:         true,
		NoSigs:        true,
		Authorization: s.token,
		Username:      s.user,
		Password:      s.pass,
		Websocket: server.WebsocketOpts{
			Host:  "127.0.0.1",
			Port:  wsPort,
			NoTLS: true,
		},
	})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	s.ns = ns
	s.wsAddr = fmt.Sprintf("127.0.0.1:%d", wsPort)

	s.ln, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		ns.Shutdown()
		t.Fatalf("listen: %v", err)
	}
	s.URL = "ws://" + s.ln.Addr().String() + "/ws"
	go s.accept()

	s.observer, err = nats.Connect(ns.ClientURL(), s.observerOptions()...)
	if err != nil {
		s.Close()
		t.Fatalf("connect observer: %v", err)
	}
	if _, err := s.observer.Subscribe(">", s.record); err != nil {
		s.Close()
		t.Fatalf("subscribe observer: %v", err)
	}
	if err := s.observer.Flush(); err != nil {
		s.Close()
		t.Fatalf("flush observer: %v", err)
	}

	t.Cleanup(s.Close)
	return s
}

func (s *Server) observerOptions() []nats.Option {
	opts := []nats.Option{nats.Name(observerName), nats.NoEcho(), nats.NoReconnect()}
	switch {
	case s.token != "":
		opts = append(opts, nats.Token(s.token))
	case s.user != "":
		opts = append(opts, nats.UserInfo(s.user, s.pass))
	}
	return opts
}

func freePort(t testing.TB) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// Origin returns the http:// origin of the broker host
func (s *Server) Origin() string {
	return "http://" + s.ln.Addr().String()
}

// Close stops the server and drops every connection
func (s *Server) Close() {
	if s.observer != nil {
		s.observer.Close()
	}
	s.ln.Close()
	s.DropConnections()
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

// SetAvailable makes the server accept (true) or refuse (false) new connections
func (s *Server) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = !available
}

// DropConnections closes every client connection on both ends
func (s *Server) DropConnections() {
	s.mu.Lock()
	pipes := s.pipes
	s.pipes = make(map[net.Conn]net.Conn)
	s.mu.Unlock()

	for client, upstream := range pipes {
		client.Close()
		upstream.Close()
	}
}

// Dials returns the number of connections clients opened
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Clients returns the connected clients, excluding the server's own observer
func (s *Server) Clients() []Client {
	connz, err := s.ns.Connz(&server.ConnzOptions{})
	if err != nil {
		return nil
	}

	var clients []Client
	for _, ci := range connz.Conns {
		if ci.Name == observerName {
			continue
		}
		clients = append(clients, Client{
			Name:    ci.Name,
			Lang:    ci.Lang,
			Version: ci.Version,
			Subs:    int(ci.NumSubs),
		})
	}
	return clients
}

// Subscriptions returns the number of live subscriptions across all clients
func (s *Server) Subscriptions() int {
	n := 0
	for _, c := range s.Clients() {
		n += c.Subs
	}
	return n
}

// WaitForSubscriptions blocks until at least n subscriptions are live
func (s *Server) WaitForSubscriptions(t testing.TB, n int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Subscriptions() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d subscriptions, have %d", n, s.Subscriptions())
}

// Published returns every message clients published so far
func (s *Server) Published() []Published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Published(nil), s.published...)
}

// WaitForPublished blocks until at least n messages were published by clients
func (s *Server) WaitForPublished(t testing.TB, n int) []Published {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if published := s.Published(); len(published) >= n {
			return published
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d published messages, have %d", n, len(s.Published()))
	return nil
}

// Publish delivers data to every matching subscription and waits for the server to
// have processed it
func (s *Server) Publish(subj string, data []byte) error {
	if err := s.observer.Publish(subj, data); err != nil {
		return err
	}
	return s.observer.Flush()
}

// PublishMsg publishes msg, headers included
func (s *Server) PublishMsg(t testing.TB, msg *nats.Msg) {
	t.Helper()

	if err := s.observer.PublishMsg(msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.observer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// PublishJSON marshals v and publishes it
func (s *Server) PublishJSON(t testing.TB, subj string, v any) {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := s.Publish(subj, data); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func (s *Server) record(m *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, Published{Subject: m.Subject, Data: m.Data})
}

func (s *Server) accept() {
	for {
		client, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.dials++
		unavailable := s.unavailable
		s.mu.Unlock()

		if unavailable {
			client.Close()
			continue
		}
		go s.forward(client)
	}
}

func (s *Server) forward(client net.Conn) {
	upstream, err := net.Dial("tcp", s.wsAddr)
	if err != nil {
		client.Close()
		return
	}

	s.mu.Lock()
	s.pipes[client] = upstream
	s.mu.Unlock()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(upstream, client)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(client, upstream)
		done <- struct{}{}
	}()
	<-done

	client.Close()
	upstream.Close()
	s.mu.Lock()
	delete(s.pipes, client)
	s.mu.Unlock()
}
