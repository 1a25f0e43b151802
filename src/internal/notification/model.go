package notification

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Notification struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID          string             `json:"userId" bson:"user_id"`
	Type            string             `json:"type" bson:"type"`
	Title           string             `json:"title" bson:"title"`
	Message         string             `json:"message" bson:"message"`
	TeamID          string             `json:"teamId,omitempty" bson:"team_id,omitempty"`
	TeamName        string             `json:"teamName,omitempty" bson:"team_name,omitempty"`
	ChannelID       string             `json:"channelId,omitempty" bson:"channel_id,omitempty"`
	ChannelName     string             `json:"channelName,omitempty" bson:"channel_name,omitempty"`
	Severity        string             `json:"severity" bson:"severity"`
	IsRead          bool               `json:"isRead" bson:"is_read"`
	IsDeleted       bool               `json:"isDeleted" bson:"is_deleted"`
	ActionHash      string             `json:"actionHash" bson:"action_hash"`
	OccurrenceCount int                `json:"occurrenceCount" bson:"occurrence_count"`
	LastOccurrence  time.Time          `json:"lastOccurrence" bson:"last_occurrence"`
	IsResolved      bool               `json:"isResolved" bson:"is_resolved"`
	ResolvedAt      *time.Time         `json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
	Metadata        map[string]string  `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updated_at"`
}

// Type constants
const (
	TypeTeamRemoval        = "team_removal"
	TypeTeamInvite         = "team_invite"
	TypeTeamUpdate         = "team_update"
	TypeChannelMemberAdded = "channel_member_added"
	TypeSystem             = "system"
	TypeTest               = "test"
)

// Severity constants
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// View is the user-facing shape with the repeated-occurrence display fields.
type View struct {
	Notification
	DisplayMessage string `json:"displayMessage"`
	IsRepeated     bool   `json:"isRepeated"`
}

// Fields carries the display attributes of a single occurrence. Dedup
// bookkeeping (hash, counter, read flags) is owned by the service.
type Fields struct {
	Type        string
	Title       string
	Message     string
	TeamID      string
	TeamName    string
	ChannelID   string
	ChannelName string
	Severity    string
	Metadata    map[string]string
}

// ActionHash builds the deterministic fingerprint of "this kind of event
// happened to this user for this target entity".
func ActionHash(kind, userID, targetID string) string {
	return fmt.Sprintf("%s:%s:%s", kind, userID, targetID)
}

// ToView converts a record for API responses.
func (n *Notification) ToView() *View {
	display := n.Message
	if n.OccurrenceCount > 1 {
		display = fmt.Sprintf("%s (%d times)", n.Message, n.OccurrenceCount)
	}
	return &View{
		Notification:   *n,
		DisplayMessage: display,
		IsRepeated:     n.OccurrenceCount > 1,
	}
}

func IsValidType(t string) bool {
	switch t {
	case TypeTeamRemoval, TypeTeamInvite, TypeTeamUpdate, TypeChannelMemberAdded, TypeSystem, TypeTest:
		return true
	}
	return false
}

func IsValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}
