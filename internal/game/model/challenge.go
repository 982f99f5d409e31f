package model

import (
	"github.com/google/uuid"
)

// Challenge lifecycle statuses.
const (
	StatusPending  = "PENDING"
	StatusComplete = "COMPLETE"
)

// Choice is one candidate sound description shown to the player.
// Exactly one choice per challenge is the rendered ground truth.
type Choice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Challenge is one round of the audio guessing game: a set of candidate
// descriptions, a ground-truth answer, and (once rendering finishes) a
// playable audio clip with an embedded beep marker.
//
// Choices, ChallengeAnswer, NumberOfPrompts and CorrelationID are write-once
// at creation. ChallengeSoundURL and BeepPosition are set together with the
// PENDING → COMPLETE transition and never change afterwards.
type Challenge struct {
	ID              uuid.UUID         `json:"id"                 db:"id"`
	CreatedAt       int64             `json:"created_at"         db:"created_at"`
	UpdatedAt       int64             `json:"updated_at"         db:"updated_at"`
	NumberOfPrompts int               `json:"number_of_prompts"  db:"number_of_prompts"`
	Choices         map[string]Choice `json:"choices"            db:"choices"`
	ChallengeAnswer string            `json:"challenge_answer"   db:"challenge_answer"`
	CorrelationID   string            `json:"correlation_id"     db:"correlation_id"`

	ChallengeSoundURL string `json:"challenge_sound_url" db:"challenge_sound_url"`
	BeepPosition      int    `json:"beep_position"       db:"beep_position"`
	Status            string `json:"status"              db:"status"`

	// StartPlay is the wall-clock second an active play session began.
	// nil means no session is in progress; a pointer is used so that a
	// session started exactly at the zero timestamp is still distinguishable
	// from "no session".
	StartPlay *int64 `json:"start_play,omitempty" db:"start_play"`
}

// IsComplete reports whether the audio asset is rendered and playable.
func (c *Challenge) IsComplete() bool {
	return c.Status == StatusComplete
}

// IsPlaying reports whether a play session is in progress.
func (c *Challenge) IsPlaying() bool {
	return c.StartPlay != nil
}

// PublicChallenge is the sanitized view served to a guessing client.
// It must never carry the answer, the beep offset, the session timestamp,
// or internal status/bookkeeping fields.
type PublicChallenge struct {
	ID                uuid.UUID         `json:"id"`
	NumberOfPrompts   int               `json:"number_of_prompts"`
	Choices           map[string]Choice `json:"choices"`
	ChallengeSoundURL string            `json:"challenge_sound_url"`
}

// Public returns the answer-stripped view of the challenge.
func (c *Challenge) Public() *PublicChallenge {
	return &PublicChallenge{
		ID:                c.ID,
		NumberOfPrompts:   c.NumberOfPrompts,
		Choices:           c.Choices,
		ChallengeSoundURL: c.ChallengeSoundURL,
	}
}
