package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soundclue/soundclue/internal/game/model"
)

// ErrChallengeNotFound is returned when no challenge matches the lookup.
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeRepository provides persistence for challenges.
//
// Session and status transitions are implemented as single conditional
// UPDATE statements so that concurrent callers race inside the database
// rather than between a read and a write.
type ChallengeRepository struct {
	db *pgxpool.Pool
}

// NewChallengeRepository creates a new ChallengeRepository.
func NewChallengeRepository(db *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const challengeColumns = `id, created_at, updated_at, number_of_prompts, choices,
	 challenge_answer, correlation_id, challenge_sound_url, beep_position, status, start_play`

// Create inserts a new challenge record and assigns its id.
func (r *ChallengeRepository) Create(ctx context.Context, ch *model.Challenge) error {
	ch.ID = uuid.New()

	_, err := r.db.Exec(ctx,
		`INSERT INTO challenges (id, created_at, updated_at, number_of_prompts, choices,
		                         challenge_answer, correlation_id, challenge_sound_url,
		                         beep_position, status, start_play)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)`,
		ch.ID, ch.CreatedAt, ch.UpdatedAt, ch.NumberOfPrompts, ch.Choices,
		ch.ChallengeAnswer, ch.CorrelationID, ch.ChallengeSoundURL,
		ch.BeepPosition, ch.Status,
	)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (r *ChallengeRepository) scanOne(row pgx.Row) (*model.Challenge, error) {
	ch := &model.Challenge{}
	err := row.Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt, &ch.NumberOfPrompts, &ch.Choices,
		&ch.ChallengeAnswer, &ch.CorrelationID, &ch.ChallengeSoundURL,
		&ch.BeepPosition, &ch.Status, &ch.StartPlay)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("scan challenge: %w", err)
	}
	return ch, nil
}

// GetByID returns a single challenge by its UUID.
func (r *ChallengeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Challenge, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id,
	))
}

// GetByCorrelationID returns the challenge linked to the given render job.
func (r *ChallengeRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*model.Challenge, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE correlation_id = $1`, correlationID,
	))
}

// FindRandomComplete returns one uniformly random COMPLETE challenge with the
// given candidate count, or ErrChallengeNotFound when none exists.
func (r *ChallengeRepository) FindRandomComplete(ctx context.Context, numberOfPrompts int) (*model.Challenge, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT `+challengeColumns+`
		 FROM challenges
		 WHERE status = $1 AND number_of_prompts = $2
		 ORDER BY random()
		 LIMIT 1`,
		model.StatusComplete, numberOfPrompts,
	))
}

// MarkComplete transitions a PENDING challenge to COMPLETE, recording the
// final sound URL and beep offset. Returns false when the challenge was not
// PENDING (duplicate finalize), which callers treat as a no-op.
func (r *ChallengeRepository) MarkComplete(ctx context.Context, id uuid.UUID, soundURL string, beepPosition int, now int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE challenges
		 SET status = $2, challenge_sound_url = $3, beep_position = $4, updated_at = $5
		 WHERE id = $1 AND status = $6`,
		id, model.StatusComplete, soundURL, beepPosition, now, model.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark challenge complete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// StartPlay opens a play session by setting start_play, but only when the
// challenge is COMPLETE and no session is active. Returns false when the
// conditional update matched no row; the caller disambiguates the cause.
func (r *ChallengeRepository) StartPlay(ctx context.Context, id uuid.UUID, now int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE challenges
		 SET start_play = $2, updated_at = $2
		 WHERE id = $1 AND start_play IS NULL AND status = $3`,
		id, now, model.StatusComplete,
	)
	if err != nil {
		return false, fmt.Errorf("start play: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EndPlay atomically closes the active play session, returning the session
// start and the stored beep offset that were in effect. ok is false when no
// session was active (or the id is unknown); start_play is left untouched in
// that case.
func (r *ChallengeRepository) EndPlay(ctx context.Context, id uuid.UUID, now int64) (startPlay int64, beepPosition int, ok bool, err error) {
	err = r.db.QueryRow(ctx,
		`UPDATE challenges AS c
		 SET start_play = NULL, updated_at = $2
		 FROM (SELECT id, start_play, beep_position FROM challenges WHERE id = $1 FOR UPDATE) AS prev
		 WHERE c.id = prev.id AND prev.start_play IS NOT NULL
		 RETURNING prev.start_play, prev.beep_position`,
		id, now,
	).Scan(&startPlay, &beepPosition)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("end play: %w", err)
	}
	return startPlay, beepPosition, true, nil
}

// CountStalePending returns the number of challenges still PENDING whose
// last update is older than the given epoch cutoff. Used for operator
// visibility into render jobs that never completed.
func (r *ChallengeRepository) CountStalePending(ctx context.Context, updatedBefore int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM challenges WHERE status = $1 AND updated_at < $2`,
		model.StatusPending, updatedBefore,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale pending: %w", err)
	}
	return n, nil
}
