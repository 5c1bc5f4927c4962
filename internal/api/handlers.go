// Package api is the HTTP surface: stateless handlers translating requests
// into supervisor and gateway calls.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"zapgate/internal/gateway"
	"zapgate/internal/wa"
)

// sendTimeout caps a single send. Sends run on an independent context so a
// dropped HTTP client does not cancel an in-flight delivery.
const sendTimeout = 120 * time.Second

// Supervisor is the lifecycle surface the handlers need.
type Supervisor interface {
	Snapshot() wa.Snapshot
	Connect(ctx context.Context)
	Disconnect(ctx context.Context)
}

// Messenger is the outbound-messaging surface the handlers need.
type Messenger interface {
	SendOne(ctx context.Context, phone, text string) (string, error)
	SendBatch(ctx context.Context, items []gateway.BatchItem) (*gateway.BatchReport, error)
}

// Server holds handler dependencies.
type Server struct {
	sup   Supervisor
	gw    Messenger
	log   zerolog.Logger
	start time.Time
}

func NewServer(sup Supervisor, gw Messenger, log zerolog.Logger) *Server {
	return &Server{sup: sup, gw: gw, log: log.With().Str("component", "api").Logger(), start: time.Now()}
}

func (s *Server) uptime() string {
	return time.Since(s.start).Round(time.Second).String()
}

// Health is the only unauthenticated endpoint.
func (s *Server) Health(c *gin.Context) {
	snap := s.sup.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"whatsapp":     snap.Phase.String(),
		"phone":        snap.Phone,
		"messagesSent": snap.MessagesSent,
		"uptime":       s.uptime(),
	})
}

func (s *Server) Status(c *gin.Context) {
	snap := s.sup.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":       snap.Phase.String(),
		"phone":        snap.Phone,
		"messagesSent": snap.MessagesSent,
		"lastError":    snap.LastError,
		"hasQrCode":    snap.HasQR(),
		"uptime":       s.uptime(),
	})
}

// QR serves the pending pairing code, as JSON by default or as raw PNG
// bytes with ?format=image.
func (s *Server) QR(c *gin.Context) {
	snap := s.sup.Snapshot()
	if snap.Phase == wa.PhaseConnected {
		c.JSON(http.StatusOK, gin.H{
			"status":  "connected",
			"message": "already connected, no QR code needed",
			"phone":   snap.Phone,
		})
		return
	}
	if !snap.HasQR() {
		c.JSON(http.StatusOK, gin.H{
			"status":  "waiting",
			"message": "no QR code available yet, call /connect or retry shortly",
		})
		return
	}
	if c.Query("format") == "image" {
		c.Data(http.StatusOK, "image/png", snap.QRPNG)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "qr_ready",
		"qr":       snap.QRCode,
		"qr_image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(snap.QRPNG),
	})
}

type connectRequest struct {
	Reset bool `json:"reset"`
}

func (s *Server) Connect(c *gin.Context) {
	var req connectRequest
	// Body is optional; ignore decode errors and treat as reset=false.
	_ = c.ShouldBindJSON(&req)

	snap := s.sup.Snapshot()
	if snap.Phase == wa.PhaseConnected && !req.Reset {
		c.JSON(http.StatusOK, gin.H{
			"status": "already_connected",
			"phone":  snap.Phone,
		})
		return
	}
	if req.Reset {
		s.sup.Disconnect(c.Request.Context())
	}
	s.sup.Connect(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":  "connecting",
		"message": "session starting, poll /qr for the pairing code",
	})
}

func (s *Server) Disconnect(c *gin.Context) {
	s.sup.Disconnect(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":  "disconnected",
		"message": "session ended and credentials purged",
	})
}

type sendRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (s *Server) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "fields 'phone' and 'message' are required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	jid, err := s.gw.SendOne(ctx, req.Phone, req.Message)
	if err != nil {
		s.log.Error().Err(err).Str("phone", req.Phone).Msg("send failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jid":     jid,
	})
}

type sendBatchRequest struct {
	Messages []gateway.BatchItem `json:"messages"`
}

func (s *Server) SendBatch(c *gin.Context) {
	var req sendBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field 'messages' must be an array of {phone, message}"})
		return
	}

	// Batches run on an independent context: once started, every item runs
	// to completion regardless of the HTTP client.
	report, err := s.gw.SendBatch(context.Background(), req.Messages)
	if err != nil {
		if errors.Is(err, gateway.ErrBatchEmpty) || errors.Is(err, gateway.ErrBatchTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
