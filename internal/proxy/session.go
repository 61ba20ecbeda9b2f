package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/shroud/internal/protocol"
	"github.com/xkilldash9x/shroud/internal/stealth"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrTransportClosed marks a session ending because one side's
// transport closed or failed to write. It is scoped to the owning
// session and never fatal to the proxy as a whole.
var ErrTransportClosed = errors.New("proxy: transport closed")

const (
	// writeWait bounds a single frame write on either transport.
	writeWait = 10 * time.Second
	// closeGrace bounds the best-effort close handshake at teardown.
	closeGrace = time.Second
	// localCallBase reserves an id space for calls the session issues
	// on its own behalf. Client-originated ids live in the in-flight
	// table, so responses to local calls are naturally unmatched and
	// get consumed by the issuing routine instead of the client.
	localCallBase = 1_000_000_000
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateConnecting State = iota
	StateRelaying
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRelaying:
		return "relaying"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Stats counts what a session did with the frames it saw. Counters are
// atomic because the two pumps bump them concurrently.
type Stats struct {
	ForwardedOut     atomic.Int64
	ForwardedIn      atomic.Int64
	Blocked          atomic.Int64
	Rewritten        atomic.Int64
	SuppressedEvents atomic.Int64
	DroppedMalformed atomic.Int64
	DroppedUnmatched atomic.Int64
}

// StatsSnapshot is a plain-value copy of Stats for logging and persistence.
type StatsSnapshot struct {
	ForwardedOut     int64 `json:"forwarded_out"`
	ForwardedIn      int64 `json:"forwarded_in"`
	Blocked          int64 `json:"blocked"`
	Rewritten        int64 `json:"rewritten"`
	SuppressedEvents int64 `json:"suppressed_events"`
	DroppedMalformed int64 `json:"dropped_malformed"`
	DroppedUnmatched int64 `json:"dropped_unmatched"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ForwardedOut:     s.ForwardedOut.Load(),
		ForwardedIn:      s.ForwardedIn.Load(),
		Blocked:          s.Blocked.Load(),
		Rewritten:        s.Rewritten.Load(),
		SuppressedEvents: s.SuppressedEvents.Load(),
		DroppedMalformed: s.DroppedMalformed.Load(),
		DroppedUnmatched: s.DroppedUnmatched.Load(),
	}
}

// endpoint serializes writes to one websocket connection. Both pumps
// may write to the client side (forwarded frames and locally
// synthesized results), so writes take a mutex.
type endpoint struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (e *endpoint) writeText(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return e.conn.WriteMessage(websocket.TextMessage, frame)
}

// readText returns the next text frame, skipping non-text frames the
// protocol does not define.
func (e *endpoint) readText() ([]byte, error) {
	for {
		messageType, data, err := e.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (e *endpoint) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = e.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	_ = e.conn.Close()
}

// Session owns exactly one client connection and one upstream
// connection and relays protocol frames between them, applying the
// rewrite rules. Destroying either side destroys the session; teardown
// closes the other side.
type Session struct {
	id       string
	client   *endpoint
	upstream *endpoint
	rules    *RuleSet
	asm      *stealth.Assembler
	log      *zap.Logger

	state      atomic.Int32
	nextCallID atomic.Int64

	// mu guards the two response-routing tables, touched by both pumps.
	mu       sync.Mutex
	inflight map[int64]struct{}
	pending  map[int64]chan *protocol.Message

	teardownOnce sync.Once
	malformedLog *rate.Limiter

	Stats Stats
}

// NewSession wires a client and an upstream connection into a session.
// Both connections are owned by the session from this point on.
func NewSession(client, upstream *websocket.Conn, rules *RuleSet, asm *stealth.Assembler, logger *zap.Logger) *Session {
	s := &Session{
		id:       uuid.New().String(),
		client:   &endpoint{conn: client},
		upstream: &endpoint{conn: upstream},
		rules:    rules,
		asm:      asm,
		inflight: make(map[int64]struct{}),
		pending:  make(map[int64]chan *protocol.Message),
		// A hostile peer spraying garbage must not flood the log.
		malformedLog: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	s.log = logger.Named("session").With(zap.String("session_id", s.id))
	s.nextCallID.Store(localCallBase)
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Run pumps both directions until either transport closes or ctx is
// canceled. The two pumps make independent progress; a stall on one
// side never blocks delivery on the other. Run always leaves the
// session in StateClosed with both connections closed.
func (s *Session) Run(ctx context.Context) error {
	s.state.Store(int32(StateRelaying))
	s.log.Info("Session relaying")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.outboundPump() })
	g.Go(func() error { return s.inboundPump() })
	g.Go(func() error {
		<-gctx.Done()
		s.teardown("context done")
		return nil
	})

	err := g.Wait()
	s.state.Store(int32(StateClosed))
	s.failPending()
	s.log.Info("Session closed", zap.Any("stats", s.Stats.Snapshot()))

	if errors.Is(err, ErrTransportClosed) {
		return nil
	}
	return err
}

// teardown moves the session to Draining and closes both transports.
// In-flight writes on each endpoint finish first because close takes
// the same write mutex. Safe to call from any goroutine, once wins.
func (s *Session) teardown(reason string) {
	s.teardownOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateRelaying), int32(StateDraining))
		s.log.Debug("Session teardown", zap.String("reason", reason))
		s.client.close()
		s.upstream.close()
	})
}

// outboundPump relays client -> browser, applying rewrite rules.
func (s *Session) outboundPump() error {
	for {
		frame, err := s.client.readText()
		if err != nil {
			s.teardown("client read failed")
			return fmt.Errorf("%w: client read: %v", ErrTransportClosed, err)
		}
		msg, err := protocol.Parse(frame)
		if err != nil {
			s.noteMalformed("client", err)
			continue
		}
		if err := s.handleOutbound(msg, frame); err != nil {
			s.teardown("outbound write failed")
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
	}
}

// inboundPump relays browser -> client, routing responses and
// filtering suppressed events.
func (s *Session) inboundPump() error {
	for {
		frame, err := s.upstream.readText()
		if err != nil {
			s.teardown("upstream read failed")
			return fmt.Errorf("%w: upstream read: %v", ErrTransportClosed, err)
		}
		msg, err := protocol.Parse(frame)
		if err != nil {
			s.noteMalformed("upstream", err)
			continue
		}
		if err := s.handleInbound(msg, frame); err != nil {
			s.teardown("inbound write failed")
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
	}
}

func (s *Session) handleOutbound(msg *protocol.Message, frame []byte) error {
	if msg.Kind != protocol.KindCall {
		// Clients only issue calls, but anything else parseable is
		// forwarded untouched rather than second-guessed.
		s.Stats.ForwardedOut.Add(1)
		return s.upstream.writeText(frame)
	}

	rule := s.rules.Lookup(msg.Method)
	switch rule.Action {
	case ActionBlock:
		s.Stats.Blocked.Add(1)
		reply := protocol.NewResult(msg.ID, protocol.EmptyResult())
		reply.SessionID = msg.SessionID
		out, err := reply.Serialize()
		if err != nil {
			return err
		}
		s.log.Debug("Blocked call answered locally", zap.String("method", msg.Method), zap.Int64("id", msg.ID))
		return s.client.writeText(out)

	case ActionRewrite:
		rewritten, err := s.rewriteScriptParam(msg, rule.ScriptParam)
		if err != nil {
			// A rewrite rule on a call without the expected script
			// parameter passes through untouched.
			s.log.Debug("Rewrite skipped", zap.String("method", msg.Method), zap.Error(err))
		} else {
			frame = rewritten
			s.Stats.Rewritten.Add(1)
		}
	}

	s.trackInflight(msg.ID)
	s.Stats.ForwardedOut.Add(1)
	return s.upstream.writeText(frame)
}

func (s *Session) handleInbound(msg *protocol.Message, frame []byte) error {
	if msg.IsResponse() {
		if ch := s.takePending(msg.ID); ch != nil {
			// Response to a call this session issued itself.
			ch <- msg
			return nil
		}
		if !s.clearInflight(msg.ID) {
			// Not ours, not the client's. Expected for late replies
			// after rule changes; never surfaced.
			s.Stats.DroppedUnmatched.Add(1)
			return nil
		}
		s.Stats.ForwardedIn.Add(1)
		return s.client.writeText(frame)
	}

	if msg.Kind == protocol.KindEvent && s.rules.EventSuppressed(msg.Method) {
		s.Stats.SuppressedEvents.Add(1)
		return nil
	}

	s.Stats.ForwardedIn.Add(1)
	return s.client.writeText(frame)
}

// rewriteScriptParam prepends the assembled override script to the
// named string parameter and re-serializes the call.
func (s *Session) rewriteScriptParam(msg *protocol.Message, param string) ([]byte, error) {
	if len(msg.Params) == 0 {
		return nil, fmt.Errorf("call has no params")
	}
	var params map[string]jsoniter.RawMessage
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, fmt.Errorf("params not an object: %w", err)
	}
	raw, ok := params[param]
	if !ok {
		return nil, fmt.Errorf("params missing %q", param)
	}
	var script string
	if err := json.Unmarshal(raw, &script); err != nil {
		return nil, fmt.Errorf("param %q not a string: %w", param, err)
	}

	combined, err := json.Marshal(s.asm.Script() + stealth.StatementSeparator + script)
	if err != nil {
		return nil, err
	}
	params[param] = combined

	newParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	out := *msg
	out.Params = newParams
	return out.Serialize()
}

// Call issues a session-originated request upstream and waits for the
// matching response. The response never reaches the client: local ids
// are outside the in-flight table, so the inbound pump hands them to
// the pending channel registered here.
func (s *Session) Call(ctx context.Context, method string, params jsoniter.RawMessage) (*protocol.Message, error) {
	id := s.nextCallID.Add(1)
	ch := make(chan *protocol.Message, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	frame, err := protocol.NewCall(id, method, params).Serialize()
	if err != nil {
		return nil, err
	}
	if err := s.upstream.writeText(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrTransportClosed
		}
		if resp.Kind == protocol.KindError {
			return nil, fmt.Errorf("proxy: %s failed: %d %s", method, resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) trackInflight(id int64) {
	s.mu.Lock()
	s.inflight[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) clearInflight(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; !ok {
		return false
	}
	delete(s.inflight, id)
	return true
}

func (s *Session) takePending(id int64) chan *protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)
	return ch
}

// failPending wakes any Call still waiting once the session is closed.
func (s *Session) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

func (s *Session) noteMalformed(side string, err error) {
	s.Stats.DroppedMalformed.Add(1)
	if s.malformedLog.Allow() {
		s.log.Warn("Dropped malformed frame", zap.String("side", side), zap.Error(err))
	}
}
