package model

import "time"

// ChangeKind names a mutation of the talent or session collections.
type ChangeKind string

// Change kinds.
const (
	ChangeTalentCreated  ChangeKind = "talent_created"
	ChangeTalentUpdated  ChangeKind = "talent_updated"
	ChangeTalentDeleted  ChangeKind = "talent_deleted"
	ChangeSessionStarted ChangeKind = "session_started"
	ChangeSessionStopped ChangeKind = "session_stopped"
	ChangeServiceStarted ChangeKind = "service_started"
)

// Change notifies the evaluation worker that state moved.
type Change struct {
	Kind     ChangeKind
	TalentID int64
	At       time.Time
}
