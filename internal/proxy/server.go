package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shroud/internal/config"
	"github.com/xkilldash9x/shroud/internal/fingerprint"
	"github.com/xkilldash9x/shroud/internal/stealth"
)

// Server exposes the client-facing debugging endpoint. Every websocket
// client gets its own Session wired to a fresh upstream connection; the
// HTTP discovery endpoints (/json/version, /json/list) are proxied from
// the upstream browser with the advertised websocket URLs rewritten to
// point back at this proxy, so clients that discover their endpoint
// over HTTP are captured transparently.
type Server struct {
	cfg      config.ProxyConfig
	rules    *RuleSet
	asm      *stealth.Assembler
	log      *zap.Logger
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	http     *http.Client

	// OnSessionClosed, when set, receives every finished session's
	// counters. Set before ListenAndServe; called from the session's
	// handler goroutine.
	OnSessionClosed func(sessionID string, stats StatsSnapshot)
}

// NewServer builds a server for one spoofed identity.
func NewServer(cfg config.ProxyConfig, profile *fingerprint.Profile, logger *zap.Logger) (*Server, error) {
	if cfg.UpstreamURL == "" {
		return nil, fmt.Errorf("proxy: upstream_url is required")
	}
	if _, err := url.Parse(cfg.UpstreamURL); err != nil {
		return nil, fmt.Errorf("proxy: invalid upstream_url: %w", err)
	}
	rules, err := RuleSetFromConfig(cfg.Rules, cfg.SuppressEvents)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:   cfg,
		rules: rules,
		asm:   stealth.NewAssembler(profile),
		log:   logger.Named("proxy"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The proxy binds to loopback in the intended deployment;
			// the debugging protocol has no origin semantics.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		http:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Router builds the HTTP mux for the client-facing listener.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/json", s.handleJSONList)
	r.Get("/json/list", s.handleJSONList)
	r.Get("/json/version", s.handleJSONVersion)
	r.HandleFunc("/devtools/*", s.handleWebSocket)
	r.HandleFunc("/", s.handleWebSocket)
	return r
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("Interception proxy listening",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("upstream", s.cfg.UpstreamURL))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy: serve failed: %w", err)
	}
	return nil
}

// handleWebSocket upgrades the client and wires it to a new upstream
// connection. All client connections are relayed to the configured
// upstream endpoint regardless of the requested path; the proxy fronts
// a single browser identity.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upstream, resp, err := s.dialer.DialContext(r.Context(), s.cfg.UpstreamURL, nil)
	if err != nil {
		s.log.Error("Upstream dial failed", zap.String("upstream", s.cfg.UpstreamURL), zap.Error(err))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	client, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Client upgrade failed", zap.Error(err))
		_ = upstream.Close()
		return
	}

	client.SetReadLimit(s.cfg.MaxMessageSize)
	upstream.SetReadLimit(s.cfg.MaxMessageSize)

	sess := NewSession(client, upstream, s.rules, s.asm, s.log)
	s.log.Info("Client attached", zap.String("session_id", sess.ID()), zap.String("remote", r.RemoteAddr))

	go s.announceUpstream(sess)

	// Run synchronously: the handler owns both connections for the
	// lifetime of the session.
	if err := sess.Run(context.Background()); err != nil {
		s.log.Warn("Session ended with error", zap.String("session_id", sess.ID()), zap.Error(err))
	}
	if s.OnSessionClosed != nil {
		s.OnSessionClosed(sess.ID(), sess.Stats.Snapshot())
	}
}

// announceUpstream asks the browser for its version over the session's
// own call channel. Purely informational; the reply never reaches the
// client.
func (s *Server) announceUpstream(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := sess.Call(ctx, "Browser.getVersion", nil)
	if err != nil {
		s.log.Debug("Browser.getVersion failed", zap.String("session_id", sess.ID()), zap.Error(err))
		return
	}
	var version struct {
		Product  string `json:"product"`
		Revision string `json:"revision"`
	}
	if err := json.Unmarshal(resp.Result, &version); err != nil {
		return
	}
	s.log.Info("Upstream browser",
		zap.String("session_id", sess.ID()),
		zap.String("product", version.Product),
		zap.String("revision", version.Revision))
}

// upstreamHTTPBase derives the browser's HTTP endpoint from its
// websocket URL.
func (s *Server) upstreamHTTPBase() (string, error) {
	u, err := url.Parse(s.cfg.UpstreamURL)
	if err != nil {
		return "", err
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

func (s *Server) handleJSONVersion(w http.ResponseWriter, r *http.Request) {
	body, err := s.fetchUpstreamJSON(r.Context(), "/json/version")
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad upstream payload", http.StatusBadGateway)
		return
	}
	s.rewriteAdvertisedURLs(payload)
	s.writeJSON(w, payload)
}

func (s *Server) handleJSONList(w http.ResponseWriter, r *http.Request) {
	body, err := s.fetchUpstreamJSON(r.Context(), "/json/list")
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	var payload []map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad upstream payload", http.StatusBadGateway)
		return
	}
	for _, target := range payload {
		s.rewriteAdvertisedURLs(target)
	}
	s.writeJSON(w, payload)
}

func (s *Server) fetchUpstreamJSON(ctx context.Context, path string) ([]byte, error) {
	base, err := s.upstreamHTTPBase()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy: upstream %s returned %d", path, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// rewriteAdvertisedURLs points discovery payloads at this proxy instead
// of the upstream browser.
func (s *Server) rewriteAdvertisedURLs(target map[string]any) {
	if raw, ok := target["webSocketDebuggerUrl"].(string); ok {
		target["webSocketDebuggerUrl"] = s.rewriteWSURL(raw)
	}
}

func (s *Server) rewriteWSURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Host = s.advertisedAddr()
	return u.String()
}

// advertisedAddr is the listen address as clients can reach it. A bare
// ":port" listen address has no host to advertise, so it falls back to
// loopback rather than emitting "ws://:port".
func (s *Server) advertisedAddr() string {
	host, port, err := net.SplitHostPort(s.cfg.ListenAddr)
	if err != nil || host != "" {
		return s.cfg.ListenAddr
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	out, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_, _ = w.Write(out)
}
