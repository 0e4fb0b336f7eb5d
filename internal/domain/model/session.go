package model

import "time"

// Session is one practice interval for one talent. A nil End means the
// session is still open; at most one session per talent may be open.
type Session struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"userId"`
	TalentID         int64      `json:"talentId"`
	Start            time.Time  `json:"startTimestamp"`
	End              *time.Time `json:"endTimestamp"`
	ProgressObtained float64    `json:"progressObtained"`
	ProgressTarget   float64    `json:"progressTarget"` // talent's target when the session opened, in hours
}

// NewSession returns an open session for talent t starting at start.
func NewSession(id int64, t Talent, start time.Time) Session {
	return Session{
		ID:             id,
		UserID:         t.UserID,
		TalentID:       t.ID,
		Start:          start,
		ProgressTarget: t.ProgressTarget,
	}
}

// Open reports whether the session has not been finalized.
func (s Session) Open() bool { return s.End == nil }

// Duration returns End - Start. ok is false for an open session.
func (s Session) Duration() (d time.Duration, ok bool) {
	if s.End == nil {
		return 0, false
	}
	return s.End.Sub(s.Start), true
}

// Finalize returns a copy of s ended at end.
func (s Session) Finalize(end time.Time) Session {
	s.End = &end
	return s
}

// Clone returns a deep copy; the End pointer is not shared.
func (s Session) Clone() Session {
	if s.End != nil {
		end := *s.End
		s.End = &end
	}
	return s
}

// Pair is the talent and session accruing progress together.
type Pair struct {
	Talent  Talent  `json:"talent"`
	Session Session `json:"session"`
}
