// Package gateway sends outbound messages through the supervised session:
// phone normalization, recipient lookup, and paced batch dispatch.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"zapgate/internal/wa"
)

// MaxBatchSize bounds a single /send-batch request.
const MaxBatchSize = 50

// Pacing between consecutive batch sends, applied after every item
// (including the last). The randomized gap keeps the account below the
// platform's anti-abuse thresholds.
const (
	minPace = 2000 * time.Millisecond
	maxPace = 5000 * time.Millisecond
)

var (
	// ErrNotConnected means a send was attempted without a connected session.
	ErrNotConnected = errors.New("whatsapp is not connected")
	// ErrBatchEmpty means the batch had no items.
	ErrBatchEmpty = errors.New("batch is empty")
	// ErrBatchTooLarge means the batch exceeded MaxBatchSize.
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d messages", MaxBatchSize)
)

// Conn is the slice of the supervisor the gateway needs: phase reads, the
// live session, and the sent counter. Satisfied by *wa.Supervisor.
type Conn interface {
	Snapshot() wa.Snapshot
	CurrentSession() wa.Session
	NoteSent()
}

// BatchItem is one (phone, message) pair of a batch request.
type BatchItem struct {
	Phone   string `json:"phone" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// BatchResult is the per-item outcome, in input order.
type BatchResult struct {
	Phone   string `json:"phone"`
	Success bool   `json:"success"`
	JID     string `json:"jid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchReport aggregates a finished batch.
type BatchReport struct {
	Total   int           `json:"total"`
	Sent    int           `json:"sent"`
	Failed  int           `json:"failed"`
	Results []BatchResult `json:"results"`
}

// Gateway dispatches messages through the current session.
type Gateway struct {
	conn Conn
	log  zerolog.Logger

	// sleep is swappable so tests can observe pacing without waiting.
	sleep func(time.Duration)
}

func New(conn Conn, log zerolog.Logger) *Gateway {
	return &Gateway{
		conn:  conn,
		log:   log.With().Str("component", "gateway").Logger(),
		sleep: time.Sleep,
	}
}

// SendOne normalizes the phone, resolves it against the registry, and sends
// a single text message. On success it bumps the sent counter and returns
// the resolved JID. Lookup misses surface as wa.ErrNotRegistered; transport
// failures pass through unmodified.
func (g *Gateway) SendOne(ctx context.Context, phone, text string) (string, error) {
	snap := g.conn.Snapshot()
	if snap.Phase != wa.PhaseConnected {
		return "", ErrNotConnected
	}
	sess := g.conn.CurrentSession()
	if sess == nil {
		return "", ErrNotConnected
	}

	number := NormalizeNumber(phone)
	jid, err := sess.Resolve(ctx, number)
	if err != nil {
		return "", err
	}

	id, err := sess.Send(ctx, jid, text)
	if err != nil {
		return "", err
	}
	g.conn.NoteSent()
	g.log.Info().Str("jid", jid.String()).Str("id", id).Msg("message sent")
	return jid.String(), nil
}

// SendBatch sends up to MaxBatchSize items sequentially, pausing a random
// 2-5 s after each one. One item failing does not abort the rest; results
// come back in input order. Oversized or empty input is rejected before any
// send happens.
func (g *Gateway) SendBatch(ctx context.Context, items []BatchItem) (*BatchReport, error) {
	if len(items) == 0 {
		return nil, ErrBatchEmpty
	}
	if len(items) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	report := &BatchReport{
		Total:   len(items),
		Results: make([]BatchResult, 0, len(items)),
	}
	for i, item := range items {
		res := BatchResult{Phone: item.Phone}
		jid, err := g.SendOne(ctx, item.Phone, item.Message)
		if err != nil {
			res.Error = err.Error()
			report.Failed++
			g.log.Warn().Err(err).Str("phone", item.Phone).Int("index", i).Msg("batch item failed")
		} else {
			res.Success = true
			res.JID = jid
			report.Sent++
		}
		report.Results = append(report.Results, res)
		g.pace()
	}
	g.log.Info().Int("total", report.Total).Int("sent", report.Sent).Int("failed", report.Failed).Msg("batch finished")
	return report, nil
}

func (g *Gateway) pace() {
	g.sleep(minPace + rand.N(maxPace-minPace))
}
