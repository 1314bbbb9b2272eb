package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthSuccess EventType = "auth.success"
	EventTypeAuthFailed  EventType = "auth.failed"

	// Authorization events
	EventTypeAuthzAllowed EventType = "authz.allowed"
	EventTypeAuthzDenied  EventType = "authz.denied"

	// Membership events
	EventTypeMemberAdd          EventType = "member.add"
	EventTypeMemberRemove       EventType = "member.remove"
	EventTypeMemberRoleChange   EventType = "member.role_change"
	EventTypeMemberStatusChange EventType = "member.status_change"

	// Role events
	EventTypeRoleUpsert EventType = "role.upsert"

	// Invitation events
	EventTypeInviteCreate EventType = "invite.create"
	EventTypeInviteAccept EventType = "invite.accept"
	EventTypeInviteRevoke EventType = "invite.revoke"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor and target
	UserID   string `json:"user_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Subject of membership and role events
	SubjectID string `json:"subject_id,omitempty"`
	Role      string `json:"role,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Outcome detail, e.g. the rule that denied
	Reason string `json:"reason,omitempty"`
}
