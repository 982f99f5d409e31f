package service

import (
	"strconv"
	"strings"
)

// beepToleranceSeconds is the inclusive window around the expected beep
// moment within which a report still counts as a hit. One second absorbs
// human reaction latency and client/server clock skew.
const beepToleranceSeconds = 1

// ValidateBeepTiming reports whether the reported offset falls within the
// tolerance window around the expected offset. Both values are in seconds;
// the check is symmetric in |expected − reported|.
func ValidateBeepTiming(expected, reported int64) bool {
	d := expected - reported
	if d < 0 {
		d = -d
	}
	return d <= beepToleranceSeconds
}

// ValidatePromptGuess reports whether the guessed candidate index matches
// the stored answer index. Both sides are normalized to integers first, so
// a guess of "2" and a stored answer of "02" (or an integer 2 serialized by
// a client) compare equal. Non-numeric input never matches.
func ValidatePromptGuess(answer, guess string) bool {
	a, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return false
	}
	g, err := strconv.Atoi(strings.TrimSpace(guess))
	if err != nil {
		return false
	}
	return a == g
}
