package session

import "time"

// Verdict is the lifecycle decision for a looked-up session.
type Verdict int

const (
	// Invalid means the session is missing or expired.
	Invalid Verdict = iota
	// Fresh means the session is valid and was seen recently; no write is needed.
	Fresh
	// StaleNeedsRotation means the session is valid but due for a rolling refresh.
	StaleNeedsRotation
)

func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case StaleNeedsRotation:
		return "stale"
	default:
		return "invalid"
	}
}

// Evaluate applies the rolling-refresh policy to s at now.
//
// A nil session or one whose expiry is at or before now is Invalid. Otherwise
// the session is Fresh while less than threshold has passed since it was last
// seen, and StaleNeedsRotation after that.
func Evaluate(s *Session, now time.Time, threshold time.Duration) Verdict {
	if s == nil || s.IsExpired(now) {
		return Invalid
	}
	if now.Sub(s.SeenAt()) < threshold {
		return Fresh
	}
	return StaleNeedsRotation
}
