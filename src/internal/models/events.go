package models

import "time"

// MembershipEvent is the message shape the CRUD service publishes to RabbitMQ
// whenever team or channel membership changes.
type MembershipEvent struct {
	Event       string            `json:"event"`
	UserID      string            `json:"user_id,omitempty"`
	UserIDs     []string          `json:"user_ids,omitempty"`
	TeamID      string            `json:"team_id,omitempty"`
	TeamName    string            `json:"team_name,omitempty"`
	ChannelID   string            `json:"channel_id,omitempty"`
	ChannelName string            `json:"channel_name,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Membership event constants
const (
	EventTeamMemberRemoved  = "team.member.removed"
	EventTeamMemberAdded    = "team.member.added"
	EventTeamUpdated        = "team.updated"
	EventChannelMemberAdded = "channel.member.added"
	EventChannelCreated     = "channel.created"
	EventChannelUpdated     = "channel.updated"
	EventChannelDeleted     = "channel.deleted"
	EventUserLoggedOut      = "user.logged_out"
)

// Recipients returns the users the event addresses, whether it was published
// with a single id or a batch.
func (e *MembershipEvent) Recipients() []string {
	if len(e.UserIDs) > 0 {
		return e.UserIDs
	}
	if e.UserID != "" {
		return []string{e.UserID}
	}
	return nil
}
