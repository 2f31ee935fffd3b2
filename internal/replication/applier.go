package replication

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/SamirCosta/RedeSocial/internal/repository"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// EventSink receives every mutation committed on this node, local or
// replicated. The live-feed hub and the broker bridge implement it.
type EventSink interface {
	Publish(event models.FeedEvent)
}

// Applier applies inbound DATA_REPLICATION events to the local
// repositories. Every branch is idempotent under repeated delivery, and
// the applier never re-emits events, so replication does not cascade.
type Applier struct {
	users    *repository.Users
	posts    *repository.Posts
	messages *repository.Messages
	sink     EventSink
}

func NewApplier(users *repository.Users, posts *repository.Posts, messages *repository.Messages, sink EventSink) *Applier {
	return &Applier{
		users:    users,
		posts:    posts,
		messages: messages,
		sink:     sink,
	}
}

// HandleMessage is the sync-endpoint handler for DATA_REPLICATION.
func (a *Applier) HandleMessage(payload []byte) map[string]any {
	var msg struct {
		SourceServerID string          `json:"sourceServerId"`
		EventType      string          `json:"eventType"`
		EntityID       string          `json:"entityId"`
		Timestamp      int64           `json:"timestamp"`
		Data           json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.ErrorReply("malformed replication message: %v", err)
	}

	event := models.ReplicationEvent{
		Type:      msg.EventType,
		EntityID:  msg.EntityID,
		Timestamp: msg.Timestamp,
		Data:      msg.Data,
	}
	log.Printf("[Replication] applying %s for %s from %s", event.Type, event.EntityID, msg.SourceServerID)

	if err := a.Apply(event); err != nil {
		log.Printf("[Replication] failed to apply %s: %v", event.Type, err)
		return models.ErrorReply("%v", err)
	}
	return models.OK()
}

// Apply dispatches one event to the matching idempotent branch.
func (a *Applier) Apply(event models.ReplicationEvent) error {
	switch event.Type {
	case models.EventUserCreated:
		return a.applyUserCreated(event)
	case models.EventFollowAdded:
		return a.applyFollow(event, true)
	case models.EventFollowRemoved:
		return a.applyFollow(event, false)
	case models.EventPostCreated:
		return a.applyPostCreated(event)
	case models.EventPostUpdated:
		return a.applyPostUpdated(event)
	case models.EventPostDeleted:
		return a.applyPostDeleted(event)
	case models.EventMessageSent:
		return a.applyMessageSent(event)
	default:
		return fmt.Errorf("unrecognized replication event type: %s", event.Type)
	}
}

func (a *Applier) applyUserCreated(event models.ReplicationEvent) error {
	var data models.UserCreatedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("bad USER_CREATED payload: %w", err)
	}

	if _, exists := a.users.Get(data.Username); exists {
		log.Printf("[Replication] user %s already exists, skipping", data.Username)
		return nil
	}

	user := &repository.User{
		Username:  data.Username,
		Password:  data.Password,
		CreatedAt: parseEventTime(data.CreatedAt),
	}
	if err := a.users.Add(user); err != nil {
		return err
	}
	a.publish(event)
	return nil
}

func (a *Applier) applyFollow(event models.ReplicationEvent, add bool) error {
	var data models.FollowData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("bad follow payload: %w", err)
	}

	followed, okFollowed := a.users.Get(data.Username)
	follower, okFollower := a.users.Get(data.FollowerUsername)
	if !okFollowed || !okFollower {
		// Missing users: log and drop, the event stays idempotent.
		log.Printf("[Replication] follow event for unknown users %s/%s, dropping", data.Username, data.FollowerUsername)
		return nil
	}

	if add {
		followed.AddFollower(data.FollowerUsername)
		follower.AddFollowing(data.Username)
	} else {
		followed.RemoveFollower(data.FollowerUsername)
		follower.RemoveFollowing(data.Username)
	}

	if err := a.users.Update(followed); err != nil {
		return err
	}
	if err := a.users.Update(follower); err != nil {
		return err
	}
	a.publish(event)
	return nil
}

func (a *Applier) applyPostCreated(event models.ReplicationEvent) error {
	var data models.PostData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("bad POST_CREATED payload: %w", err)
	}

	if _, exists := a.posts.GetByID(data.ID); exists {
		log.Printf("[Replication] post %s already exists, skipping", data.ID)
		return nil
	}

	post := &repository.Post{
		ID:        data.ID,
		Username:  data.Username,
		Content:   data.Content,
		CreatedAt: parseEventTime(data.CreatedAt),
		UpdatedAt: parseEventTime(data.UpdatedAt),
	}
	if err := a.posts.Add(post); err != nil {
		return err
	}
	a.publish(event)
	return nil
}

func (a *Applier) applyPostUpdated(event models.ReplicationEvent) error {
	var data models.PostData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("bad POST_UPDATED payload: %w", err)
	}

	post, exists := a.posts.GetByID(data.ID)
	if !exists {
		log.Printf("[Replication] post %s not found for update, dropping", data.ID)
		return nil
	}

	post.Content = data.Content
	if t := parseEventTime(data.UpdatedAt); !t.IsZero() {
		post.UpdatedAt = t
	}
	if err := a.posts.Update(post); err != nil {
		return err
	}
	a.publish(event)
	return nil
}

func (a *Applier) applyPostDeleted(event models.ReplicationEvent) error {
	var data models.PostData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("bad POST_DELETED payload: %w", err)
	}

	if _, exists := a.posts.GetByID(data.ID); !exists {
		return nil
	}
	if err := a.posts.Remove(data.ID); err != nil {
		return err
	}
	a.publish(event)
	return nil
}

func (a *Applier) applyMessageSent(event models.ReplicationEvent) error {
	var data models.MessageData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("bad MESSAGE_SENT payload: %w", err)
	}

	if existing, exists := a.messages.GetByID(data.ID); exists {
		// A MESSAGE_SENT may re-arrive carrying the read flag after a
		// MARK_AS_READ on the origin; apply the flag once.
		if data.Read && !existing.Read {
			existing.Read = true
			readAt := parseEventTime(data.ReadAt)
			if readAt.IsZero() {
				readAt = time.Now()
			}
			existing.ReadAt = &readAt
			if err := a.messages.Update(existing); err != nil {
				return err
			}
			a.publish(event)
		}
		return nil
	}

	msg := &repository.Message{
		ID:               data.ID,
		SenderUsername:   data.SenderUsername,
		ReceiverUsername: data.ReceiverUsername,
		Content:          data.Content,
		SentAt:           parseEventTime(data.SentAt),
		Read:             data.Read,
	}
	if data.Read {
		readAt := parseEventTime(data.ReadAt)
		if readAt.IsZero() {
			readAt = msg.SentAt
		}
		msg.ReadAt = &readAt
	}
	if err := a.messages.Add(msg); err != nil {
		return err
	}
	a.publish(event)
	return nil
}

func (a *Applier) publish(event models.ReplicationEvent) {
	if a.sink == nil {
		return
	}
	a.sink.Publish(models.FeedEvent{
		Event:     event.Type,
		EntityID:  event.EntityID,
		Timestamp: event.Timestamp,
		Data:      event.Data,
	})
}

func parseEventTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
