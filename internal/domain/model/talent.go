// Package model contains domain models passed between layers.
package model

// Talent is the progression state of one trackable skill.
//
// StreakObtained and Expiring are derived: only the streak evaluator
// writes them. Progress and TotalSeconds are only written by the
// incubation engine.
type Talent struct {
	ID             int64   `json:"id"`
	UserID         int64   `json:"userId"`
	Name           string  `json:"name"`
	WhiteStars     int     `json:"whiteStars"`
	Progress       float64 `json:"progress"`
	ProgressTarget float64 `json:"progressTarget"` // hours to fill the current level
	StreakCount    int     `json:"streakCount"`
	TotalSeconds   float64 `json:"totalSeconds"`
	StreakObtained bool    `json:"streakObtained"`
	Expiring       bool    `json:"expiring"`
}

// NewTalent returns a fresh talent at level zero.
func NewTalent(id int64, name string, userID int64, progressTarget float64) Talent {
	return Talent{
		ID:             id,
		UserID:         userID,
		Name:           name,
		ProgressTarget: progressTarget,
	}
}

// Derived holds the fields owned by the streak evaluator.
type Derived struct {
	StreakObtained bool
	Expiring       bool
	StreakCount    int
}

// Derived returns the evaluator-owned fields of t.
func (t Talent) Derived() Derived {
	return Derived{
		StreakObtained: t.StreakObtained,
		Expiring:       t.Expiring,
		StreakCount:    t.StreakCount,
	}
}

// WithDerived returns t with the evaluator-owned fields replaced by d.
func (t Talent) WithDerived(d Derived) Talent {
	t.StreakObtained = d.StreakObtained
	t.Expiring = d.Expiring
	t.StreakCount = d.StreakCount
	return t
}

// WithAccrual returns t with progress and lifetime seconds copied from src.
func (t Talent) WithAccrual(src Talent) Talent {
	t.Progress = src.Progress
	t.TotalSeconds = src.TotalSeconds
	return t
}
