package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"

	"zapgate/internal/wa"
)

type stubSession struct {
	resolveErr error
	sendErr    error

	resolved []string
	sent     []string
}

func (s *stubSession) Events() <-chan wa.Event { return nil }

func (s *stubSession) Done() <-chan struct{} { return nil }

func (s *stubSession) Connect() error { return nil }

func (s *stubSession) Disconnect() {}

func (s *stubSession) Logout(ctx context.Context) error { return nil }

func (s *stubSession) Send(ctx context.Context, to types.JID, text string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, to.User+":"+text)
	return "MSGID1", nil
}

func (s *stubSession) Resolve(ctx context.Context, number string) (types.JID, error) {
	s.resolved = append(s.resolved, number)
	if s.resolveErr != nil {
		return types.EmptyJID, s.resolveErr
	}
	return types.NewJID(number, types.DefaultUserServer), nil
}

type stubConn struct {
	phase wa.Phase
	sess  wa.Session
	sent  uint64
}

func (c *stubConn) Snapshot() wa.Snapshot {
	return wa.Snapshot{Phase: c.phase, MessagesSent: c.sent}
}
func (c *stubConn) CurrentSession() wa.Session { return c.sess }

func (c *stubConn) NoteSent() { c.sent++ }

// newTestGateway returns a gateway whose pacing sleeps are recorded instead
// of executed.
func newTestGateway(conn Conn) (*Gateway, *[]time.Duration) {
	g := New(conn, zerolog.Nop())
	var pauses []time.Duration
	g.sleep = func(d time.Duration) { pauses = append(pauses, d) }
	return g, &pauses
}

func TestSendOneNotConnected(t *testing.T) {
	sess := &stubSession{}
	conn := &stubConn{phase: wa.PhaseConnecting, sess: sess}
	g, _ := newTestGateway(conn)

	_, err := g.SendOne(context.Background(), "11999998888", "oi")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, sess.resolved)
	assert.Equal(t, uint64(0), conn.sent)
}

func TestSendOneUnknownRecipient(t *testing.T) {
	sess := &stubSession{resolveErr: wa.ErrNotRegistered}
	conn := &stubConn{phase: wa.PhaseConnected, sess: sess}
	g, _ := newTestGateway(conn)

	_, err := g.SendOne(context.Background(), "11999998888", "oi")
	require.ErrorIs(t, err, wa.ErrNotRegistered)
	assert.Empty(t, sess.sent)
	assert.Equal(t, uint64(0), conn.sent)
}

func TestSendOneTransportErrorPassesThrough(t *testing.T) {
	transport := errors.New("websocket closed mid-send")
	sess := &stubSession{sendErr: transport}
	conn := &stubConn{phase: wa.PhaseConnected, sess: sess}
	g, _ := newTestGateway(conn)

	_, err := g.SendOne(context.Background(), "11999998888", "oi")
	require.ErrorIs(t, err, transport)
	assert.Equal(t, uint64(0), conn.sent)
}

func TestSendOneSuccess(t *testing.T) {
	sess := &stubSession{}
	conn := &stubConn{phase: wa.PhaseConnected, sess: sess}
	g, _ := newTestGateway(conn)

	jid, err := g.SendOne(context.Background(), "0 11 99999-8888", "oi")
	require.NoError(t, err)
	assert.Equal(t, "5511999998888@s.whatsapp.net", jid)
	assert.Equal(t, []string{"5511999998888"}, sess.resolved)
	assert.Equal(t, []string{"5511999998888:oi"}, sess.sent)
	assert.Equal(t, uint64(1), conn.sent)
}

func TestSendBatchEmpty(t *testing.T) {
	g, pauses := newTestGateway(&stubConn{phase: wa.PhaseConnected, sess: &stubSession{}})
	_, err := g.SendBatch(context.Background(), nil)
	require.ErrorIs(t, err, ErrBatchEmpty)
	assert.Empty(t, *pauses)
}

func TestSendBatchTooLargeRejectedBeforeAnySend(t *testing.T) {
	sess := &stubSession{}
	conn := &stubConn{phase: wa.PhaseConnected, sess: sess}
	g, pauses := newTestGateway(conn)

	items := make([]BatchItem, MaxBatchSize+1)
	for i := range items {
		items[i] = BatchItem{Phone: fmt.Sprintf("119999900%02d", i), Message: "oi"}
	}
	_, err := g.SendBatch(context.Background(), items)
	require.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Empty(t, sess.resolved)
	assert.Empty(t, sess.sent)
	assert.Empty(t, *pauses)
	assert.Equal(t, uint64(0), conn.sent)
}

func TestSendBatchOrderAndCounts(t *testing.T) {
	sess := &stubSession{}
	conn := &stubConn{phase: wa.PhaseConnected, sess: sess}
	g, pauses := newTestGateway(conn)

	items := []BatchItem{
		{Phone: "11999990001", Message: "a"},
		{Phone: "11999990002", Message: "b"},
		{Phone: "11999990003", Message: "c"},
	}
	report, err := g.SendBatch(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Results, 3)
	for i, res := range report.Results {
		assert.Equal(t, items[i].Phone, res.Phone)
		assert.True(t, res.Success)
		assert.Equal(t, NormalizePhone(items[i].Phone), res.JID)
	}
	assert.Equal(t, uint64(3), conn.sent)

	// One pause per item, including after the last, each in [2s, 5s).
	require.Len(t, *pauses, 3)
	for _, d := range *pauses {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestSendBatchFailureDoesNotAbort(t *testing.T) {
	sess := &stubSession{}
	conn := &stubConn{phase: wa.PhaseConnected, sess: sess}
	g, _ := newTestGateway(conn)

	// Fail only the second item.
	calls := 0
	sessWrap := &flakySession{stubSession: sess, failOn: 2, calls: &calls}
	conn.sess = sessWrap

	report, err := g.SendBatch(context.Background(), []BatchItem{
		{Phone: "11999990001", Message: "a"},
		{Phone: "11999990002", Message: "b"},
		{Phone: "11999990003", Message: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, report.Total, report.Sent+report.Failed)
	assert.False(t, report.Results[1].Success)
	assert.NotEmpty(t, report.Results[1].Error)
	assert.True(t, report.Results[2].Success)
}

type flakySession struct {
	*stubSession
	failOn int
	calls  *int
}

func (f *flakySession) Send(ctx context.Context, to types.JID, text string) (string, error) {
	*f.calls++
	if *f.calls == f.failOn {
		return "", errors.New("transient send failure")
	}
	return f.stubSession.Send(ctx, to, text)
}
