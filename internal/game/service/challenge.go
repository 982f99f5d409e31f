package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soundclue/soundclue/internal/game/model"
	"github.com/soundclue/soundclue/internal/game/repository"
	"github.com/soundclue/soundclue/internal/render"
	"go.uber.org/zap"
)

// Domain conditions reported by play-session transitions. These are not
// transport failures: handlers translate them into 200 responses with an
// explicit error field so that clients branch on payload.
var (
	// ErrAlreadyPlaying means a play session is in progress; StartPlay
	// refuses to overwrite it.
	ErrAlreadyPlaying = errors.New("challenge is already being played")

	// ErrNotPlaying means a session-scoped check was called with no active
	// play session.
	ErrNotPlaying = errors.New("challenge has no active play session")

	// ErrNotReady means the challenge audio has not finished rendering.
	ErrNotReady = errors.New("challenge audio is not ready")

	// ErrNoneAvailable means no COMPLETE challenge matches the random
	// selection filter. Callers treat this as an empty result, not a fault.
	ErrNoneAvailable = errors.New("no completed challenge available")
)

// challengeStore is the persistence interface required by ChallengeService.
// *repository.ChallengeRepository satisfies this interface; tests use an
// in-memory stub with the same conditional-update semantics.
type challengeStore interface {
	Create(ctx context.Context, ch *model.Challenge) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Challenge, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*model.Challenge, error)
	FindRandomComplete(ctx context.Context, numberOfPrompts int) (*model.Challenge, error)
	MarkComplete(ctx context.Context, id uuid.UUID, soundURL string, beepPosition int, now int64) (bool, error)
	StartPlay(ctx context.Context, id uuid.UUID, now int64) (bool, error)
	EndPlay(ctx context.Context, id uuid.UUID, now int64) (startPlay int64, beepPosition int, ok bool, err error)
}

// PromptProvider generates the candidate description set.
type PromptProvider interface {
	GenerateCandidates(ctx context.Context, count int) (map[string]model.Choice, error)
}

// RenderProvider submits text-to-audio jobs and fetches their output.
type RenderProvider interface {
	Submit(ctx context.Context, description string, durationSeconds int) (correlationID string, err error)
	FetchAsset(ctx context.Context, srcURL, destPath string) error
}

// BlobStore uploads the composed artifact to durable storage.
type BlobStore interface {
	Upload(ctx context.Context, localPath, destPath string) (publicURL string, err error)
}

// Composer produces the augmented clip and reports the chosen beep offset.
type Composer interface {
	Compose(inputPath, outputPath string) (beepOffset int, err error)
}

// Config holds the tunables of the challenge lifecycle.
type Config struct {
	// DefaultPrompts is the candidate count used when a request does not
	// specify one.
	DefaultPrompts int
	// RenderDurationSeconds is the target duration of the raw rendered clip.
	RenderDurationSeconds int
	// WorkDir holds transient per-correlation-id artifacts during finalize.
	WorkDir string
}

// ChallengeService orchestrates the challenge lifecycle: creation, the
// render-completion finalize path, and the play-session state machine.
type ChallengeService struct {
	store    challengeStore
	prompts  PromptProvider
	render   RenderProvider
	blobs    BlobStore
	composer Composer
	cfg      Config
	logger   *zap.Logger

	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewChallengeService creates a ChallengeService. Pass nil rng to seed from
// the clock; tests inject a seeded source to assert specific selections.
func NewChallengeService(store challengeStore, prompts PromptProvider, renderer RenderProvider,
	blobs BlobStore, composer Composer, cfg Config, rng *rand.Rand, logger *zap.Logger) *ChallengeService {

	if cfg.DefaultPrompts <= 0 {
		cfg.DefaultPrompts = 3
	}
	if cfg.RenderDurationSeconds <= 0 {
		cfg.RenderDurationSeconds = 8
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ChallengeService{
		store:    store,
		prompts:  prompts,
		render:   renderer,
		blobs:    blobs,
		composer: composer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		rng:      rng,
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *ChallengeService) SetClock(now func() time.Time) {
	s.now = now
}

// intn is the service's single source of randomness, guarded for concurrent
// handlers.
func (s *ChallengeService) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Create builds a new challenge: it obtains numberOfPrompts candidates,
// picks one uniformly at random as the ground truth, submits the render job
// for its description, and persists the record as PENDING. A numberOfPrompts
// of zero falls back to the configured default; the transport layer rejects
// explicit non-positive values before they reach here.
func (s *ChallengeService) Create(ctx context.Context, numberOfPrompts int) (*model.Challenge, error) {
	if numberOfPrompts <= 0 {
		numberOfPrompts = s.cfg.DefaultPrompts
	}

	candidates, err := s.prompts.GenerateCandidates(ctx, numberOfPrompts)
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}

	// Selection over an explicit numerically ordered key list keeps the
	// draw well-defined regardless of map iteration order.
	keys := make([]string, 0, len(candidates))
	for k := range candidates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	answer := keys[s.intn(len(keys))]

	correlationID, err := s.render.Submit(ctx, candidates[answer].Description, s.cfg.RenderDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("submit render job: %w", err)
	}

	nowSec := s.now().Unix()
	ch := &model.Challenge{
		CreatedAt:       nowSec,
		UpdatedAt:       nowSec,
		NumberOfPrompts: numberOfPrompts,
		Choices:         candidates,
		ChallengeAnswer: answer,
		CorrelationID:   correlationID,
		Status:          model.StatusPending,
	}
	if err := s.store.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("persist challenge: %w", err)
	}

	s.logger.Info("challenge created",
		zap.String("id", ch.ID.String()),
		zap.String("correlation_id", correlationID),
		zap.Int("number_of_prompts", numberOfPrompts),
	)
	return ch, nil
}

// FinalizeOutcome classifies how a completion signal was handled.
type FinalizeOutcome string

const (
	// OutcomeCompleted means this call performed the PENDING → COMPLETE
	// transition.
	OutcomeCompleted FinalizeOutcome = "completed"
	// OutcomeIgnored means the signal carried a non-success status.
	OutcomeIgnored FinalizeOutcome = "ignored"
	// OutcomeNotFound means no challenge matches the correlation id. This is
	// a data-consistency condition on our side, not a provider fault.
	OutcomeNotFound FinalizeOutcome = "not_found"
	// OutcomeAlreadyComplete means a duplicate signal arrived after the
	// challenge was finalized; nothing was re-rendered or re-uploaded.
	OutcomeAlreadyComplete FinalizeOutcome = "already_complete"
)

// Finalize handles a render-completion signal: it fetches the raw asset,
// composes the beep-augmented clip, uploads it, and marks the challenge
// COMPLETE. Any collaborator failure aborts the sequence and leaves the
// challenge PENDING so a re-delivered signal can retry; duplicate signals
// for a finalized challenge are no-ops.
func (s *ChallengeService) Finalize(ctx context.Context, sig render.CompletionSignal) (FinalizeOutcome, error) {
	if !sig.Succeeded() {
		s.logger.Info("render callback ignored", zap.String("correlation_id", sig.ID), zap.String("status", sig.Status))
		return OutcomeIgnored, nil
	}

	ch, err := s.store.GetByCorrelationID(ctx, sig.ID)
	if err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			s.logger.Warn("render callback for unknown challenge", zap.String("correlation_id", sig.ID))
			return OutcomeNotFound, nil
		}
		return "", fmt.Errorf("look up challenge: %w", err)
	}
	if ch.IsComplete() {
		return OutcomeAlreadyComplete, nil
	}

	rawPath := filepath.Join(s.cfg.WorkDir, sig.ID+".wav")
	composedPath := filepath.Join(s.cfg.WorkDir, sig.ID+"_composed.wav")

	// A previous failed finalize for this correlation id may have left
	// artifacts behind; start from a clean slate and clean up again on the
	// way out.
	s.removeArtifacts(rawPath, composedPath)
	defer s.removeArtifacts(rawPath, composedPath)

	if err := s.render.FetchAsset(ctx, sig.Output, rawPath); err != nil {
		return "", fmt.Errorf("fetch rendered asset: %w", err)
	}

	beepOffset, err := s.composer.Compose(rawPath, composedPath)
	if err != nil {
		return "", fmt.Errorf("compose challenge audio: %w", err)
	}

	destPath := "generated-audio/" + sig.ID + ".wav"
	publicURL, err := s.blobs.Upload(ctx, composedPath, destPath)
	if err != nil {
		return "", fmt.Errorf("upload composed audio: %w", err)
	}

	ok, err := s.store.MarkComplete(ctx, ch.ID, publicURL, beepOffset, s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("mark challenge complete: %w", err)
	}
	if !ok {
		// A concurrent delivery won the transition; treat ours as the
		// duplicate.
		return OutcomeAlreadyComplete, nil
	}

	s.logger.Info("challenge finalized",
		zap.String("id", ch.ID.String()),
		zap.String("correlation_id", sig.ID),
		zap.Int("beep_position", beepOffset),
		zap.String("sound_url", publicURL),
	)
	return OutcomeCompleted, nil
}

func (s *ChallengeService) removeArtifacts(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove transient artifact", zap.String("path", p), zap.Error(err))
		}
	}
}

// Get returns a challenge by id.
func (s *ChallengeService) Get(ctx context.Context, id uuid.UUID) (*model.Challenge, error) {
	return s.store.GetByID(ctx, id)
}

// Random returns a uniformly random COMPLETE challenge with the given
// candidate count (the configured default when numberOfPrompts is zero), or
// ErrNoneAvailable when none exists.
func (s *ChallengeService) Random(ctx context.Context, numberOfPrompts int) (*model.Challenge, error) {
	if numberOfPrompts <= 0 {
		numberOfPrompts = s.cfg.DefaultPrompts
	}
	ch, err := s.store.FindRandomComplete(ctx, numberOfPrompts)
	if err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return nil, ErrNoneAvailable
		}
		return nil, err
	}
	return ch, nil
}

// StartPlay opens a play session and returns its start timestamp. Exactly
// one of several concurrent calls wins; losers get ErrAlreadyPlaying. A
// challenge still rendering yields ErrNotReady.
func (s *ChallengeService) StartPlay(ctx context.Context, id uuid.UUID) (int64, error) {
	nowSec := s.now().Unix()

	ok, err := s.store.StartPlay(ctx, id, nowSec)
	if err != nil {
		return 0, err
	}
	if !ok {
		ch, err := s.store.GetByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if !ch.IsComplete() {
			return 0, ErrNotReady
		}
		return 0, ErrAlreadyPlaying
	}
	return nowSec, nil
}

// CheckBeep judges whether "now" falls within the tolerance window around
// the moment the beep was audible (session start plus the stored beep
// offset). The session always ends here, success or not, so the same
// session cannot be replayed; a call with no active session yields
// ErrNotPlaying and changes nothing.
func (s *ChallengeService) CheckBeep(ctx context.Context, id uuid.UUID) (bool, error) {
	nowSec := s.now().Unix()

	startPlay, beepPosition, ok, err := s.store.EndPlay(ctx, id, nowSec)
	if err != nil {
		return false, err
	}
	if !ok {
		// Distinguish an unknown id from an idle session.
		if _, err := s.store.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, ErrNotPlaying
	}

	expected := startPlay + int64(beepPosition)
	return ValidateBeepTiming(expected, nowSec), nil
}

// CheckAnswer judges a candidate guess against the stored ground truth. It
// requires an active play session but leaves the session open: ending a
// session is driven solely by CheckBeep, so the answer may be checked before
// or independently of the beep check.
func (s *ChallengeService) CheckAnswer(ctx context.Context, id uuid.UUID, guess string) (bool, error) {
	ch, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !ch.IsPlaying() {
		return false, ErrNotPlaying
	}
	return ValidatePromptGuess(ch.ChallengeAnswer, guess), nil
}

// CheckChallenge is the stateless combined judgement: the reported beep
// offset and candidate guess are checked against the stored ground truth
// with no session required. Success means both checks pass. The challenge
// must be COMPLETE — before that there is no ground-truth beep offset.
func (s *ChallengeService) CheckChallenge(ctx context.Context, id uuid.UUID, reportedBeep int, guess string) (bool, error) {
	ch, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !ch.IsComplete() {
		return false, ErrNotReady
	}

	timingOK := ValidateBeepTiming(int64(ch.BeepPosition), int64(reportedBeep))
	answerOK := ValidatePromptGuess(ch.ChallengeAnswer, guess)
	return timingOK && answerOK, nil
}
