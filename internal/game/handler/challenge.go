package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/soundclue/soundclue/internal/game/repository"
	"github.com/soundclue/soundclue/internal/game/service"
	"github.com/soundclue/soundclue/internal/prompts"
	"go.uber.org/zap"
)

// ChallengeHandler handles the gameplay HTTP surface.
//
// Domain conditions (already playing, not playing, not ready, nothing
// available) are 200 responses with an explicit error or result field —
// clients branch on the payload. HTTP error codes are reserved for transport
// problems: bad input, unknown ids, and failing collaborators.
type ChallengeHandler struct {
	svc    *service.ChallengeService
	logger *zap.Logger

	// storeTimeout bounds store-backed lookups; createTimeout covers the
	// prompt-generation plus render-submission round trips.
	storeTimeout  time.Duration
	createTimeout time.Duration
}

// NewChallengeHandler creates a ChallengeHandler.
func NewChallengeHandler(svc *service.ChallengeService, logger *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		svc:           svc,
		logger:        logger,
		storeTimeout:  5 * time.Second,
		createTimeout: 90 * time.Second,
	}
}

// Register mounts the gameplay routes on the given group.
func (h *ChallengeHandler) Register(r *gin.RouterGroup) {
	r.POST("/challenges", h.CreateChallenge)
	r.GET("/challenges/random", h.RandomChallenge)
	r.GET("/challenges/:id", h.GetChallenge)
	r.POST("/challenges/:id/play", h.StartPlay)
	r.POST("/challenges/:id/beep", h.CheckBeep)
	r.POST("/challenges/:id/answer", h.CheckAnswer)
	r.GET("/check-challenge", h.CheckChallenge)
}

type createChallengeRequest struct {
	NumberOfPrompts *int `json:"number_of_prompts"`
}

// CreateChallenge handles POST /challenges.
func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	var req createChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	count := 0
	if req.NumberOfPrompts != nil {
		if *req.NumberOfPrompts <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "number_of_prompts must be a positive integer"})
			return
		}
		count = *req.NumberOfPrompts
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.createTimeout)
	defer cancel()

	ch, err := h.svc.Create(ctx, count)
	if err != nil {
		if errors.Is(err, prompts.ErrBadCandidateFormat) {
			h.logger.Error("prompt provider returned malformed candidates", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "prompt provider returned malformed candidates"})
			return
		}
		h.logger.Error("create challenge failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}

	RecordChallengeCreated()
	c.JSON(http.StatusCreated, ch)
}

// RandomChallenge handles GET /challenges/random. The response is the
// sanitized view: no answer, no beep offset, no session or status fields.
func (h *ChallengeHandler) RandomChallenge(c *gin.Context) {
	count := 0
	if raw := c.Query("number_of_prompts"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "number_of_prompts must be a positive integer"})
			return
		}
		count = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	ch, err := h.svc.Random(ctx, count)
	if err != nil {
		if errors.Is(err, service.ErrNoneAvailable) {
			c.JSON(http.StatusOK, gin.H{"result": "no challenge available"})
			return
		}
		h.logger.Error("random challenge lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch challenge"})
		return
	}

	c.JSON(http.StatusOK, ch.Public())
}

// GetChallenge handles GET /challenges/:id, serving the sanitized view.
func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	ch, err := h.svc.Get(ctx, id)
	if err != nil {
		h.respondLookupError(c, err, "get challenge")
		return
	}
	c.JSON(http.StatusOK, ch.Public())
}

// StartPlay handles POST /challenges/:id/play.
func (h *ChallengeHandler) StartPlay(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	startPlay, err := h.svc.StartPlay(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyPlaying):
			c.JSON(http.StatusOK, gin.H{"error": "already playing"})
		case errors.Is(err, service.ErrNotReady):
			c.JSON(http.StatusOK, gin.H{"error": "challenge not ready"})
		default:
			h.respondLookupError(c, err, "start play")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"start_play": startPlay})
}

// CheckBeep handles POST /challenges/:id/beep.
func (h *ChallengeHandler) CheckBeep(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	success, err := h.svc.CheckBeep(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotPlaying) {
			c.JSON(http.StatusOK, gin.H{"error": "not playing"})
			return
		}
		h.respondLookupError(c, err, "check beep")
		return
	}

	RecordCheck("beep", success)
	c.JSON(http.StatusOK, gin.H{"success": success})
}

type checkAnswerRequest struct {
	PromptGuess any `json:"prompt_guess"`
}

// CheckAnswer handles POST /challenges/:id/answer. The guess may arrive as
// a JSON string or number; both are judged the same way.
func (h *ChallengeHandler) CheckAnswer(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req checkAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	guess, ok := normalizeGuess(req.PromptGuess)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt_guess is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	success, err := h.svc.CheckAnswer(ctx, id, guess)
	if err != nil {
		if errors.Is(err, service.ErrNotPlaying) {
			c.JSON(http.StatusOK, gin.H{"error": "not playing"})
			return
		}
		h.respondLookupError(c, err, "check answer")
		return
	}

	RecordCheck("answer", success)
	c.JSON(http.StatusOK, gin.H{"success": success})
}

// CheckChallenge handles GET /check-challenge — the stateless combined
// judgement. All three query parameters are required.
func (h *ChallengeHandler) CheckChallenge(c *gin.Context) {
	rawID := c.Query("id")
	rawBeep := c.Query("beep_position")
	rawGuess := c.Query("prompt_guess")
	for name, v := range map[string]string{"id": rawID, "beep_position": rawBeep, "prompt_guess": rawGuess} {
		if v == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing required query parameter: " + name})
			return
		}
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge id"})
		return
	}
	beep, err := strconv.Atoi(rawBeep)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "beep_position must be an integer"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	success, err := h.svc.CheckChallenge(ctx, id, beep, rawGuess)
	if err != nil {
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusOK, gin.H{"error": "challenge not ready"})
			return
		}
		h.respondLookupError(c, err, "check challenge")
		return
	}

	RecordCheck("combined", success)
	c.JSON(http.StatusOK, gin.H{"success": success})
}

func (h *ChallengeHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *ChallengeHandler) respondLookupError(c *gin.Context, err error, op string) {
	if errors.Is(err, repository.ErrChallengeNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge not found"})
		return
	}
	h.logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// normalizeGuess flattens a JSON string or number guess to its textual form.
func normalizeGuess(v any) (string, bool) {
	switch g := v.(type) {
	case string:
		return g, g != ""
	case float64:
		return strconv.FormatInt(int64(g), 10), true
	default:
		return "", false
	}
}
