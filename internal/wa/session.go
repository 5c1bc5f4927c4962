// Package wa owns the WhatsApp session: a thin adapter over whatsmeow and
// the supervisor that drives its lifecycle.
package wa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	qrterminal "github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"zapgate/internal/credstore"
)

// ErrNotRegistered means the looked-up number has no WhatsApp account.
var ErrNotRegistered = errors.New("number is not registered on WhatsApp")

// Session is one live protocol client. Implementations must emit events in
// the order the underlying client produces them and never drop any.
type Session interface {
	// Events is the stream consumed by the supervisor. It is never closed;
	// Done signals that the session is finished.
	Events() <-chan Event
	// Done is closed when the session is torn down.
	Done() <-chan struct{}
	// Connect starts the handshake. QR events follow if pairing is needed.
	Connect() error
	// Disconnect tears the session down. Idempotent.
	Disconnect()
	// Logout unlinks the device server-side.
	Logout(ctx context.Context) error
	// Send delivers a text message and returns the message ID.
	Send(ctx context.Context, to types.JID, text string) (string, error)
	// Resolve checks a normalized number against the registry and returns
	// its canonical JID, or ErrNotRegistered.
	Resolve(ctx context.Context, number string) (types.JID, error)
}

// SessionFactory builds sessions. The supervisor constructs at most one live
// session at a time through it.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Factory is the production SessionFactory: it opens the credential store
// and wraps a whatsmeow client around its first device.
type Factory struct {
	store *credstore.Store
	log   zerolog.Logger
}

func NewFactory(store *credstore.Store, log zerolog.Logger) *Factory {
	return &Factory{store: store, log: log}
}

func (f *Factory) NewSession(ctx context.Context) (Session, error) {
	container, err := f.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return newSession(device, f.log), nil
}

type waSession struct {
	cli    *whatsmeow.Client
	log    zerolog.Logger
	events chan Event
	done   chan struct{}

	handlerID uint32
	closeOnce sync.Once
}

func newSession(device *store.Device, log zerolog.Logger) *waSession {
	s := &waSession{
		log:    log.With().Str("component", "session").Logger(),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	s.cli = whatsmeow.NewClient(device, waLog.Zerolog(s.log))
	s.handlerID = s.cli.AddEventHandler(s.handleEvent)
	return s
}

func (s *waSession) Events() <-chan Event { return s.events }

func (s *waSession) Done() <-chan struct{} { return s.done }

func (s *waSession) Connect() error {
	if s.cli.Store.ID == nil {
		// Not paired yet: the QR channel must be requested before Connect.
		qrCh, err := s.cli.GetQRChannel(context.Background())
		if err != nil {
			s.log.Warn().Err(err).Msg("qr channel unavailable")
		} else {
			go s.pumpQR(qrCh)
		}
	}
	return s.cli.Connect()
}

func (s *waSession) Disconnect() {
	s.closeOnce.Do(func() {
		s.cli.RemoveEventHandler(s.handlerID)
		s.cli.Disconnect()
		close(s.done)
	})
}

func (s *waSession) Logout(ctx context.Context) error {
	return s.cli.Logout(ctx)
}

func (s *waSession) Send(ctx context.Context, to types.JID, text string) (string, error) {
	msg := &waE2E.Message{Conversation: proto.String(text)}
	resp, err := s.cli.SendMessage(ctx, to, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (s *waSession) Resolve(ctx context.Context, number string) (types.JID, error) {
	resp, err := s.cli.IsOnWhatsApp(ctx, []string{"+" + number})
	if err != nil {
		return types.EmptyJID, fmt.Errorf("lookup %s: %w", number, err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.EmptyJID, ErrNotRegistered
	}
	return resp[0].JID, nil
}

// emit forwards an event unless the session is already torn down.
func (s *waSession) emit(ev Event) {
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

func (s *waSession) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		phone := ""
		if s.cli.Store.ID != nil {
			phone = s.cli.Store.ID.User
		}
		s.emit(ConnectedEvent{Phone: phone})
	case *events.PairSuccess:
		s.log.Info().Str("jid", evt.ID.String()).Str("platform", evt.Platform).Msg("paired")
	case *events.StreamReplaced:
		s.emit(ClosedEvent{Reason: CloseRestartRequired, Message: "stream replaced by another connection"})
	case *events.LoggedOut:
		s.emit(ClosedEvent{Reason: CloseLoggedOut, Code: int(evt.Reason), Message: evt.Reason.String()})
	case *events.ConnectFailure:
		s.emit(ClosedEvent{Reason: CloseTransient, Code: int(evt.Reason), Message: evt.Message})
	case *events.TemporaryBan:
		s.emit(ClosedEvent{Reason: CloseNormal, Code: int(evt.Code), Message: fmt.Sprintf("temporarily banned (%s), expires in %v", evt.Code, evt.Expire)})
	case *events.Disconnected:
		s.emit(ClosedEvent{Reason: CloseTransient, Message: "connection lost"})
	}
}

func (s *waSession) pumpQR(qrCh <-chan whatsmeow.QRChannelItem) {
	for item := range qrCh {
		switch item.Event {
		case "code":
			s.log.Info().Msg("scan the QR code below to pair")
			qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			s.emit(QREvent{Code: item.Code})
		case "success":
			s.log.Info().Msg("qr scan accepted, finishing pairing")
		case "timeout":
			s.emit(ClosedEvent{Reason: CloseTransient, Message: "qr code timed out"})
		case "error":
			s.emit(ClosedEvent{Reason: CloseTransient, Message: fmt.Sprintf("qr pairing error: %v", item.Error)})
		}
	}
}
