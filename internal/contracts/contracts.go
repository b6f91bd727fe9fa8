package contracts

import (
	"strings"
	"time"
)

// Topic names consumed from the event stream. They can be overridden through
// configuration; these are the well-known defaults.
const (
	DefaultChallengeCreateTopic = "challenge.notification.create"
	DefaultChallengeUpdateTopic = "challenge.notification.update"
	DefaultResourceCreateTopic  = "challenge.action.resource.create"
	DefaultResourceDeleteTopic  = "challenge.action.resource.delete"
	DefaultNotificationsTopic   = "challenge.notification.events"
)

// Challenge lifecycle statuses. Cancellations carry a sub-reason suffix, so
// membership in the cancelled family is tested by prefix.
const (
	StatusNew       = "New"
	StatusDraft     = "Draft"
	StatusActive    = "Active"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
	StatusDeleted   = "Deleted"
)

// Challenge tracks driving template selection.
const (
	TrackDevelop     = "DEVELOP"
	TrackDesign      = "DESIGN"
	TrackDataScience = "DATA_SCIENCE"
)

// Challenge is the normalized record derived from a challenge create/update
// event. URL and phase deadlines are computed during normalization.
type Challenge struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Track       string     `json:"track"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	ProjectID   int64      `json:"projectId,omitempty"`
	StartDate   time.Time  `json:"startDate,omitempty"`
	URL         string     `json:"url,omitempty"`
	Phases      []Phase    `json:"phases,omitempty"`
	PrizeSets   []PrizeSet `json:"prizeSets,omitempty"`
	SelfService bool       `json:"selfService,omitempty"`
}

// Phase is one entry of a challenge's ordered phase sequence. Deadline is
// derived from the duration chain through predecessor links.
type Phase struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Predecessor string    `json:"predecessor,omitempty"`
	Duration    int64     `json:"duration"`
	Deadline    time.Time `json:"deadline,omitempty"`
}

type PrizeSet struct {
	Type   string  `json:"type"`
	Prizes []Prize `json:"prizes"`
}

type Prize struct {
	Type  string  `json:"type,omitempty"`
	Value float64 `json:"value"`
}

// ChallengePrizesSet is the prize-set type carrying the headline prizes.
const ChallengePrizesSet = "Challenge prizes"

// Action is the normalized membership operation derived from a
// resource/notification event.
type Action string

const (
	ActionInvite Action = "invite"
	ActionKick   Action = "kick"
)

// UserAction is the normalized record derived from a resource create/delete
// or registration notification event. Handle, ProjectRole and ChallengeRoles
// may be filled in later by upstream identity resolution.
type UserAction struct {
	ChallengeID    string   `json:"challengeId"`
	UserID         string   `json:"userId"`
	Handle         string   `json:"handle,omitempty"`
	Action         Action   `json:"action"`
	ProjectRole    string   `json:"projectRole,omitempty"`
	ChallengeRoles []string `json:"challengeRoles,omitempty"`
}

// IsClosed reports whether a status belongs to the closed family that causes
// the challenge forum to be archived.
func IsClosed(status string) bool {
	return status == StatusCompleted ||
		status == StatusDeleted ||
		strings.HasPrefix(status, StatusCancelled)
}

// IsActive reports whether a status is the create-triggering active state.
func IsActive(status string) bool {
	return status == StatusActive
}
