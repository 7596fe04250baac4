package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lootvault/rewards-engine/auth"
	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/jackpot"
)

const (
	EventTypeConnected = "connected"
	EventTypeUpdated   = "updated"
	EventTypeHeartbeat = "heartbeat"
)

// JackpotHandler bridges jackpot.Service to HTTP routes (SSE + WebSocket).
type JackpotHandler struct {
	svc             *jackpot.Service
	app             *App
	logger          zerolog.Logger
	heartbeatPeriod time.Duration
	upgrader        websocket.Upgrader
}

// NewJackpotHandler creates a jackpot handler.
func NewJackpotHandler(app *App, svc *jackpot.Service) *JackpotHandler {
	return &JackpotHandler{
		svc:             svc,
		app:             app,
		logger:          app.logger.With().Str("handler", "jackpot").Logger(),
		heartbeatPeriod: 30 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// EvaluateRequest is the jackpot evaluation body.
type EvaluateRequest struct {
	SpinAmount decimal.Decimal `json:"spin_amount" binding:"required"`
}

// Evaluate handles POST /api/v1/jackpot/evaluate
// @Summary Roll the jackpot for a spin amount
// @Tags jackpot
// @Accept json
// @Produce json
// @Param request body EvaluateRequest true "Evaluation parameters"
// @Success 200 {object} SuccessResponse[jackpot.WinResult]
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/jackpot/evaluate [post]
func (h *JackpotHandler) Evaluate(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "user identity missing")
		return
	}

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	result, err := h.app.rewards.EvaluateJackpot(c.Request.Context(), userID, req.SpinAmount)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, result)
}

// ListPools handles GET /api/v1/jackpot/pools
// @Summary Active jackpot pools with current balances
// @Tags jackpot
// @Produce json
// @Success 200 {object} SuccessResponse[[]models.JackpotPool]
// @Router /api/v1/jackpot/pools [get]
func (h *JackpotHandler) ListPools(c *gin.Context) {
	pools, err := h.svc.ListActivePools(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, pools)
}

// GetPoolAmount handles GET /api/v1/jackpot/pools/:id
// The balance is served from the cache when it is warm, so polling clients
// stay off the database.
// @Summary Current balance of one jackpot pool
// @Tags jackpot
// @Produce json
// @Param id path int true "Pool ID"
// @Success 200 {object} SuccessResponse[map[string]interface{}]
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/jackpot/pools/{id} [get]
func (h *JackpotHandler) GetPoolAmount(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		ErrorWithMessage(c, http.StatusBadRequest, "invalid pool id")
		return
	}

	amount, err := h.svc.PoolAmount(c.Request.Context(), uint(id))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, gin.H{"pool_id": id, "current_amount": amount})
}

// WinHistory handles GET /api/v1/jackpot/history?limit=50
// @Summary Recent jackpot win records
// @Tags jackpot
// @Produce json
// @Param limit query int false "Max rows" default(50)
// @Success 200 {object} SuccessResponse[[]models.JackpotWinRecord]
// @Router /api/v1/jackpot/history [get]
func (h *JackpotHandler) WinHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.svc.WinHistory(c.Request.Context(), limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, records)
}

// StreamResponse is one SSE/WebSocket frame.
type StreamResponse struct {
	Type      string                  `json:"type"`
	Timestamp int64                   `json:"timestamp"`
	Pools     map[uint]PoolUpdateView `json:"pools,omitempty"`
}

// PoolUpdateView is the client-facing pool state.
type PoolUpdateView struct {
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Event     string  `json:"event,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// StreamUpdates opens SSE connection and streams pool updates.
// Route: GET /api/v1/jackpot/updates
func (h *JackpotHandler) StreamUpdates(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.WriteHeader(http.StatusOK)

	sender := &sseSender{writer: c.Writer}
	h.stream(c, sender, nil)
}

// StreamUpdatesWebSocket opens WebSocket connection and streams pool updates.
// Route: GET /api/v1/jackpot/updates/ws
func (h *JackpotHandler) StreamUpdatesWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close() //nolint:errcheck

	writeDeadline := 10 * time.Second
	conn.SetWriteDeadline(time.Now().Add(writeDeadline)) //nolint:errcheck

	done := make(chan struct{})

	// Detect connection close
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(10 * time.Minute)) //nolint:errcheck
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket connection closed unexpectedly")
			} else {
				h.logger.Debug().Err(err).Msg("WebSocket closed normally")
			}
		}
	}()

	// Send ping to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	go func() {
		defer pingTicker.Stop()
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					h.logger.Debug().Err(err).Msg("Failed to send ping")
					return
				}
			}
		}
	}()

	sender := &wsSender{
		conn:          conn,
		done:          done,
		logger:        h.logger,
		writeDeadline: writeDeadline,
	}
	h.stream(c, sender, done)
}

// stream handles the common streaming logic for both SSE and WebSocket.
func (h *JackpotHandler) stream(c *gin.Context, sender messageSender, doneChan <-chan struct{}) {
	ctx := c.Request.Context()
	updates, cancel := h.svc.Listen(ctx)
	defer cancel()

	if err := sender.Send(&StreamResponse{
		Type:      EventTypeConnected,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send connected event, stopping stream")
		return
	}

	h.sendInitialPools(c, sender)

	heartbeat := time.NewTicker(h.heartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-doneChan:
			h.logger.Debug().Msg("Stream connection closed")
			return
		case <-heartbeat.C:
			if err := sender.Send(&StreamResponse{
				Type:      EventTypeHeartbeat,
				Timestamp: time.Now().Unix(),
			}); err != nil {
				h.logger.Warn().Err(err).Msg("Failed to send heartbeat, stopping stream")
				return
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			pools := map[uint]PoolUpdateView{
				update.PoolID: {
					Name:      update.PoolName,
					Amount:    update.Amount.InexactFloat64(),
					Event:     update.Event,
					Timestamp: update.Timestamp.Unix(),
				},
			}
			// Drain whatever else the flush delivered so one frame carries
			// the whole batch.
		drain:
			for {
				select {
				case next, nextOk := <-updates:
					if !nextOk {
						break drain
					}
					pools[next.PoolID] = PoolUpdateView{
						Name:      next.PoolName,
						Amount:    next.Amount.InexactFloat64(),
						Event:     next.Event,
						Timestamp: next.Timestamp.Unix(),
					}
				default:
					break drain
				}
			}

			if err := sender.Send(&StreamResponse{
				Type:      EventTypeUpdated,
				Timestamp: time.Now().Unix(),
				Pools:     pools,
			}); err != nil {
				h.logger.Warn().
					Err(err).
					Int("pool_count", len(pools)).
					Msg("Failed to send update, stopping stream")
				return
			}
		}
	}
}

// sendInitialPools sends current pool balances to the client.
func (h *JackpotHandler) sendInitialPools(c *gin.Context, sender messageSender) {
	current, err := h.svc.ListActivePools(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get current pools")
		return
	}
	if len(current) == 0 {
		return
	}

	pools := make(map[uint]PoolUpdateView, len(current))
	for _, pool := range current {
		pools[pool.ID] = PoolUpdateView{
			Name:      pool.Name,
			Amount:    pool.CurrentAmount.InexactFloat64(),
			Timestamp: time.Now().Unix(),
		}
	}

	if err := sender.Send(&StreamResponse{
		Type:      EventTypeUpdated,
		Timestamp: time.Now().Unix(),
		Pools:     pools,
	}); err != nil {
		h.logger.Warn().Err(err).Int("pool_count", len(pools)).Msg("Failed to send initial pools")
	}
}

// messageSender interface for sending messages (SSE or WebSocket).
type messageSender interface {
	Send(*StreamResponse) error
}

// sseSender sends messages via SSE.
type sseSender struct {
	writer http.ResponseWriter
}

func (s *sseSender) Send(resp *StreamResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = s.writer.Write([]byte("data: " + string(payload) + "\n\n"))
	if err != nil {
		return err
	}
	s.writer.(http.Flusher).Flush()
	return nil
}

// wsSender sends messages via WebSocket.
type wsSender struct {
	conn          *websocket.Conn
	done          <-chan struct{}
	logger        zerolog.Logger
	writeDeadline time.Duration
}

func (s *wsSender) Send(resp *StreamResponse) error {
	select {
	case <-s.done:
		s.logger.Debug().Str("event_type", resp.Type).Msg("Connection already closed, skipping send")
		return io.EOF
	default:
	}

	deadline := time.Now().Add(s.writeDeadline)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to set write deadline")
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", resp.Type).Msg("Failed to marshal response")
		return err
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.logger.Warn().
				Err(err).
				Str("event_type", resp.Type).
				Msg("WebSocket WriteMessage failed: connection closed")
		} else {
			s.logger.Warn().
				Err(err).
				Str("event_type", resp.Type).
				Msg("WebSocket WriteMessage failed")
		}
		return err
	}

	return nil
}
