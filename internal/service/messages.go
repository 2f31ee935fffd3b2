package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/SamirCosta/RedeSocial/internal/repository"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// MessagesService answers direct messaging actions.
type MessagesService struct {
	messages *repository.Messages
	users    *repository.Users
	queue    EventQueue
	sink     EventSink
	now      func() int64
}

func NewMessagesService(messages *repository.Messages, users *repository.Users, queue EventQueue, sink EventSink, now func() int64) *MessagesService {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &MessagesService{messages: messages, users: users, queue: queue, sink: sink, now: now}
}

func (s *MessagesService) Handles() []string {
	return []string{
		models.ActionSendMessage,
		models.ActionMarkAsRead,
		models.ActionGetConversation,
		models.ActionGetUnreadMessages,
	}
}

func (s *MessagesService) Dispatch(action string, payload []byte) map[string]any {
	switch action {
	case models.ActionSendMessage:
		var req struct {
			SenderUsername   string `json:"senderUsername"`
			ReceiverUsername string `json:"receiverUsername"`
			Content          string `json:"content"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.ErrorReply("malformed request: %v", err)
		}
		if req.SenderUsername == "" || req.ReceiverUsername == "" || req.Content == "" {
			return models.ErrorReply("senderUsername, receiverUsername and content are required")
		}
		return s.send(req.SenderUsername, req.ReceiverUsername, req.Content)

	case models.ActionMarkAsRead:
		var req struct {
			MessageID string `json:"messageId"`
			Username  string `json:"username"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.ErrorReply("malformed request: %v", err)
		}
		if req.MessageID == "" || req.Username == "" {
			return models.ErrorReply("messageId and username are required")
		}
		return s.markAsRead(req.MessageID, req.Username)

	case models.ActionGetConversation:
		var req struct {
			Username1 string `json:"username1"`
			Username2 string `json:"username2"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.ErrorReply("malformed request: %v", err)
		}
		if req.Username1 == "" || req.Username2 == "" {
			return models.ErrorReply("username1 and username2 are required")
		}
		return s.conversation(req.Username1, req.Username2)

	default:
		var req struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.ErrorReply("malformed request: %v", err)
		}
		if req.Username == "" {
			return models.ErrorReply("username is required")
		}
		return s.unread(req.Username)
	}
}

func (s *MessagesService) send(sender, receiver, content string) map[string]any {
	if _, exists := s.users.Get(sender); !exists {
		return models.ErrorReply("Sender not found")
	}
	if _, exists := s.users.Get(receiver); !exists {
		return models.ErrorReply("Receiver not found")
	}

	msg := &repository.Message{
		ID:               uuid.NewString(),
		SenderUsername:   sender,
		ReceiverUsername: receiver,
		Content:          content,
		SentAt:           time.Now(),
	}
	if err := s.messages.Add(msg); err != nil {
		log.Printf("[Messages] failed to send message: %v", err)
		return models.ErrorReply("Failed to send message")
	}
	log.Printf("[Messages] message sent: %s from %s to %s", msg.ID, sender, receiver)

	commit(s.queue, s.sink, s.messageEvent(msg))

	return map[string]any{
		"success":   true,
		"message":   "Message sent successfully",
		"messageId": msg.ID,
		"sentAt":    msg.SentAt.Format(time.RFC3339Nano),
	}
}

func (s *MessagesService) markAsRead(messageID, username string) map[string]any {
	msg, exists := s.messages.GetByID(messageID)
	if !exists {
		return models.ErrorReply("Message not found")
	}
	if msg.ReceiverUsername != username {
		return models.ErrorReply("Only the receiver can mark the message as read")
	}
	if msg.Read {
		return models.ErrorReply("Message is already marked as read")
	}

	readAt := time.Now()
	msg.Read = true
	msg.ReadAt = &readAt
	if err := s.messages.Update(msg); err != nil {
		log.Printf("[Messages] failed to mark %s as read: %v", messageID, err)
		return models.ErrorReply("Failed to mark message as read")
	}
	log.Printf("[Messages] message marked as read: %s", messageID)

	// The read flag travels as a MESSAGE_SENT event; the applier folds it
	// into the existing record.
	commit(s.queue, s.sink, s.messageEvent(msg))

	return map[string]any{
		"success":   true,
		"message":   "Message marked as read",
		"messageId": msg.ID,
		"readAt":    readAt.Format(time.RFC3339Nano),
	}
}

func (s *MessagesService) conversation(username1, username2 string) map[string]any {
	_, ok1 := s.users.Get(username1)
	_, ok2 := s.users.Get(username2)
	if !ok1 || !ok2 {
		return models.ErrorReply("One or both users not found")
	}

	msgs := s.messages.GetConversation(username1, username2)
	out := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		entry := map[string]any{
			"id":               msg.ID,
			"senderUsername":   msg.SenderUsername,
			"receiverUsername": msg.ReceiverUsername,
			"content":          msg.Content,
			"sentAt":           msg.SentAt.Format(time.RFC3339Nano),
			"read":             msg.Read,
		}
		if msg.ReadAt != nil {
			entry["readAt"] = msg.ReadAt.Format(time.RFC3339Nano)
		}
		out = append(out, entry)
	}

	return map[string]any{
		"success":  true,
		"messages": out,
		"count":    len(out),
	}
}

func (s *MessagesService) unread(username string) map[string]any {
	if _, exists := s.users.Get(username); !exists {
		return models.ErrorReply("User not found")
	}

	msgs := s.messages.GetUnreadByReceiver(username)
	out := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, map[string]any{
			"id":             msg.ID,
			"senderUsername": msg.SenderUsername,
			"content":        msg.Content,
			"sentAt":         msg.SentAt.Format(time.RFC3339Nano),
		})
	}

	return map[string]any{
		"success":  true,
		"messages": out,
		"count":    len(out),
	}
}

func (s *MessagesService) messageEvent(msg *repository.Message) models.ReplicationEvent {
	data := models.MessageData{
		ID:               msg.ID,
		SenderUsername:   msg.SenderUsername,
		ReceiverUsername: msg.ReceiverUsername,
		Content:          msg.Content,
		SentAt:           msg.SentAt.Format(time.RFC3339Nano),
		Read:             msg.Read,
	}
	if msg.ReadAt != nil {
		data.ReadAt = msg.ReadAt.Format(time.RFC3339Nano)
	}
	return newEvent(models.EventMessageSent, msg.ID, s.now(), data)
}
