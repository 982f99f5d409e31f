package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundclue/soundclue/internal/game/service"
	"github.com/soundclue/soundclue/internal/render"
	"github.com/soundclue/soundclue/internal/worker"
	"go.uber.org/zap"
)

// signatureHeader carries the provider's HMAC signature of the callback body.
const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives render-completion callbacks. The provider may
// deliver a callback more than once and in any order; the finalize path is
// idempotent per correlation id, so the handler only has to classify the
// outcome and acknowledge.
type WebhookHandler struct {
	svc    *service.ChallengeService
	pool   *worker.Pool
	secret string // empty disables signature verification
	logger *zap.Logger

	// finalizeTimeout bounds the fetch + compose + upload sequence.
	finalizeTimeout time.Duration
}

// NewWebhookHandler creates a WebhookHandler. pool bounds concurrent
// finalize work so a burst of callbacks cannot saturate the process.
func NewWebhookHandler(svc *service.ChallengeService, pool *worker.Pool, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		svc:             svc,
		pool:            pool,
		secret:          secret,
		logger:          logger,
		finalizeTimeout: 2 * time.Minute,
	}
}

// Register mounts the webhook route on the given group.
func (h *WebhookHandler) Register(r *gin.RouterGroup) {
	r.POST("/receive-audio-challenge", h.ReceiveAudioChallenge)
}

// ReceiveAudioChallenge handles the provider's completion callback.
//
// Response codes follow the provider contract: 200 acknowledges the
// callback (including "no challenge found", which is our data problem, not
// the provider's), 5xx asks the provider to redeliver.
func (h *WebhookHandler) ReceiveAudioChallenge(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": "error: unreadable body"})
		return
	}

	if h.secret != "" {
		if !render.VerifySignature(h.secret, body, c.GetHeader(signatureHeader)) {
			h.logger.Warn("render callback with bad signature", zap.String("client_ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"result": "error: invalid signature"})
			return
		}
	}

	var sig render.CompletionSignal
	if err := json.Unmarshal(body, &sig); err != nil || sig.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"result": "error: malformed callback"})
		return
	}

	RecordRenderCallback(sig.Status)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.finalizeTimeout)
	defer cancel()

	var (
		outcome service.FinalizeOutcome
		finErr  error
	)
	if err := h.pool.Do(ctx, func() {
		outcome, finErr = h.svc.Finalize(ctx, sig)
	}); err != nil {
		h.logger.Warn("finalize queue full", zap.String("correlation_id", sig.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"result": "error: busy"})
		return
	}

	if finErr != nil {
		// The challenge stays PENDING; a redelivered callback retries.
		h.logger.Error("finalize failed",
			zap.String("correlation_id", sig.ID),
			zap.Error(finErr),
		)
		RecordFinalize("failed")
		c.JSON(http.StatusInternalServerError, gin.H{"result": "error"})
		return
	}

	RecordFinalize(string(outcome))
	if outcome == service.OutcomeNotFound {
		c.JSON(http.StatusOK, gin.H{"result": "error: no challenge found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "success"})
}
