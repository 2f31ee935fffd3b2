package models

import "encoding/json"

// Replication event types fanned out after every local mutation.
const (
	EventUserCreated   = "USER_CREATED"
	EventFollowAdded   = "FOLLOW_ADDED"
	EventFollowRemoved = "FOLLOW_REMOVED"
	EventPostCreated   = "POST_CREATED"
	EventPostUpdated   = "POST_UPDATED"
	EventPostDeleted   = "POST_DELETED"
	EventMessageSent   = "MESSAGE_SENT"
)

// ReplicationEvent records one committed local mutation. Data carries the
// fields needed to reconstruct it on a peer; the applier must stay
// idempotent under repeated delivery.
type ReplicationEvent struct {
	Type      string          `json:"eventType"`
	EntityID  string          `json:"entityId"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Payloads for the event Data field.

type UserCreatedData struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CreatedAt string `json:"createdAt"`
}

type FollowData struct {
	Username         string `json:"username"`
	FollowerUsername string `json:"followerUsername"`
}

type PostData struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	Content   string `json:"content,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type MessageData struct {
	ID               string `json:"id"`
	SenderUsername   string `json:"senderUsername"`
	ReceiverUsername string `json:"receiverUsername"`
	Content          string `json:"content"`
	SentAt           string `json:"sentAt"`
	Read             bool   `json:"read"`
	ReadAt           string `json:"readAt,omitempty"`
}

// FeedEvent is what the live-feed hub and the broker bridge publish for
// every mutation committed on this node, local or replicated.
type FeedEvent struct {
	Event     string          `json:"event"`
	EntityID  string          `json:"entityId"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
