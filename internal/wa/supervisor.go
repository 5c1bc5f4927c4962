package wa

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

// Phase is the connection lifecycle state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	}
	return "disconnected"
}

// Snapshot is a consistent read-only copy of the session state.
type Snapshot struct {
	Phase        Phase
	QRCode       string
	QRPNG        []byte
	Phone        string
	LastError    string
	MessagesSent uint64
}

// HasQR reports whether a pairing code is waiting to be scanned.
func (s Snapshot) HasQR() bool { return s.QRCode != "" }

// Wiper purges the credential store. Satisfied by *credstore.Store.
type Wiper interface {
	Wipe() error
}

const (
	restartReconnectDelay   = 2 * time.Second
	transientReconnectDelay = 5 * time.Second
	qrImageSize             = 256
)

// Supervisor owns the single session and its lifecycle state. It is the only
// writer of that state; HTTP handlers read it through Snapshot. All
// transitions (commands and session events alike) are serialized under one
// mutex, so readers never observe a half-applied transition.
type Supervisor struct {
	factory SessionFactory
	store   Wiper
	log     zerolog.Logger

	// Reconnect delays, overridable in tests.
	restartDelay   time.Duration
	transientDelay time.Duration

	sent atomic.Uint64

	mu        sync.Mutex
	phase     Phase
	qrCode    string
	qrPNG     []byte
	phone     string
	lastErr   string
	sess      Session
	gen       uint64
	reconnect *time.Timer
}

func NewSupervisor(factory SessionFactory, store Wiper, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		factory:        factory,
		store:          store,
		log:            log.With().Str("component", "supervisor").Logger(),
		restartDelay:   restartReconnectDelay,
		transientDelay: transientReconnectDelay,
	}
}

// Snapshot returns a copy of the current state. Non-blocking beyond the
// state mutex; never returns a torn view.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Phase:        s.phase,
		QRCode:       s.qrCode,
		QRPNG:        s.qrPNG,
		Phone:        s.phone,
		LastError:    s.lastErr,
		MessagesSent: s.sent.Load(),
	}
}

// NoteSent records one successfully delivered message. The counter is
// monotonic and survives disconnects; only a process restart resets it.
func (s *Supervisor) NoteSent() { s.sent.Add(1) }

// CurrentSession returns the live session, or nil when there is none.
func (s *Supervisor) CurrentSession() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// Connect drives Disconnected -> Connecting. Re-entrant calls while already
// Connecting or Connected are a no-op, so at most one session exists at a
// time. Failures are recorded in the snapshot's LastError instead of being
// returned; callers poll /status.
func (s *Supervisor) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseDisconnected {
		s.log.Debug().Stringer("phase", s.phase).Msg("connect ignored, session already active")
		s.mu.Unlock()
		return
	}
	s.stopReconnectLocked()
	s.phase = PhaseConnecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.log.Info().Msg("opening session")
	sess, err := s.factory.NewSession(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("session setup failed")
		s.failConnect(gen, err.Error())
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		// A disconnect won the race while we were setting up.
		s.mu.Unlock()
		sess.Disconnect()
		return
	}
	s.sess = sess
	s.mu.Unlock()

	go s.pump(sess, gen)

	if err := sess.Connect(); err != nil {
		s.log.Error().Err(err).Msg("connect failed")
		sess.Disconnect()
		s.failConnect(gen, err.Error())
	}
}

func (s *Supervisor) failConnect(gen uint64, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.phase = PhaseDisconnected
	s.sess = nil
	s.qrCode = ""
	s.qrPNG = nil
	s.phone = ""
	s.lastErr = msg
}

// Disconnect tears down the session from any state: best-effort logout,
// credential wipe, everything cleared. It also cancels any pending reconnect
// so an explicit disconnect cannot race back into Connecting. Always
// succeeds from the caller's perspective.
func (s *Supervisor) Disconnect(ctx context.Context) {
	s.mu.Lock()
	s.stopReconnectLocked()
	sess := s.sess
	s.sess = nil
	s.gen++
	s.phase = PhaseDisconnected
	s.qrCode = ""
	s.qrPNG = nil
	s.phone = ""
	s.lastErr = ""
	s.mu.Unlock()

	if sess != nil {
		if err := sess.Logout(ctx); err != nil {
			s.log.Warn().Err(err).Msg("logout failed, continuing with teardown")
		}
		sess.Disconnect()
	}
	s.wipeStore()
	s.log.Info().Msg("session disconnected")
}

// Close stops the session for process shutdown without touching the stored
// credentials, so the next start reconnects silently.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.stopReconnectLocked()
	sess := s.sess
	s.sess = nil
	s.gen++
	s.phase = PhaseDisconnected
	s.mu.Unlock()
	if sess != nil {
		sess.Disconnect()
	}
}

func (s *Supervisor) wipeStore() {
	if err := s.store.Wipe(); err != nil {
		s.log.Error().Err(err).Msg("credential wipe failed")
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
	}
}

// pump applies session events in order until the session ends or a newer
// generation supersedes it.
func (s *Supervisor) pump(sess Session, gen uint64) {
	for {
		select {
		case ev := <-sess.Events():
			if !s.apply(sess, gen, ev) {
				return
			}
		case <-sess.Done():
			return
		}
	}
}

// apply runs one state transition. Returns false once the event belongs to a
// stale generation or the session is finished.
func (s *Supervisor) apply(sess Session, gen uint64, ev Event) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}

	switch e := ev.(type) {
	case QREvent:
		s.qrCode = e.Code
		if png, err := qrcode.Encode(e.Code, qrcode.Medium, qrImageSize); err == nil {
			s.qrPNG = png
		} else {
			s.log.Warn().Err(err).Msg("qr png render failed")
			s.qrPNG = nil
		}
		s.mu.Unlock()
		s.log.Info().Msg("pairing code received")
		return true

	case ConnectedEvent:
		s.phase = PhaseConnected
		s.qrCode = ""
		s.qrPNG = nil
		s.phone = e.Phone
		s.lastErr = ""
		s.mu.Unlock()
		s.log.Info().Str("phone", e.Phone).Msg("connected")
		return true

	case ClosedEvent:
		s.phase = PhaseDisconnected
		s.sess = nil
		s.gen++
		s.qrCode = ""
		s.qrPNG = nil
		s.phone = ""
		switch e.Reason {
		case CloseLoggedOut:
			s.lastErr = "session ended, re-pair required"
			s.mu.Unlock()
			s.log.Warn().Str("detail", e.Message).Msg("logged out by primary device")
			sess.Disconnect()
			s.wipeStore()
		case CloseRestartRequired:
			s.scheduleReconnectLocked(s.restartDelay)
			s.mu.Unlock()
			s.log.Info().Str("detail", e.Message).Dur("delay", s.restartDelay).Msg("restart required, reconnecting")
			sess.Disconnect()
		case CloseTransient:
			s.lastErr = closeDetail(e)
			s.scheduleReconnectLocked(s.transientDelay)
			s.mu.Unlock()
			s.log.Warn().Str("detail", e.Message).Int("code", e.Code).Dur("delay", s.transientDelay).Msg("connection lost, reconnecting")
			sess.Disconnect()
		default: // CloseNormal
			if e.Message != "" {
				s.lastErr = e.Message
			}
			s.mu.Unlock()
			s.log.Info().Str("detail", e.Message).Msg("connection closed")
			sess.Disconnect()
		}
		return false
	}

	s.mu.Unlock()
	return true
}

func closeDetail(e ClosedEvent) string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("connection closed (code %d)", e.Code)
}

// scheduleReconnectLocked arms the reconnect timer; caller holds s.mu.
func (s *Supervisor) scheduleReconnectLocked(delay time.Duration) {
	s.stopReconnectLocked()
	s.reconnect = time.AfterFunc(delay, func() {
		s.Connect(context.Background())
	})
}

func (s *Supervisor) stopReconnectLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}
