package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/SamirCosta/RedeSocial/internal/repository"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// UsersService answers account registration and login.
type UsersService struct {
	users *repository.Users
	queue EventQueue
	sink  EventSink
	now   func() int64
}

func NewUsersService(users *repository.Users, queue EventQueue, sink EventSink, now func() int64) *UsersService {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &UsersService{users: users, queue: queue, sink: sink, now: now}
}

func (s *UsersService) Handles() []string {
	return []string{
		models.ActionUserRegister,
		models.ActionUserRegisterAlias,
		models.ActionUserLogin,
	}
}

func (s *UsersService) Dispatch(action string, payload []byte) map[string]any {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.ErrorReply("malformed request: %v", err)
	}
	if req.Username == "" || req.Password == "" {
		return models.ErrorReply("username and password are required")
	}

	switch action {
	case models.ActionUserRegister, models.ActionUserRegisterAlias:
		return s.register(req.Username, req.Password)
	default:
		return s.login(req.Username, req.Password)
	}
}

func (s *UsersService) register(username, password string) map[string]any {
	if _, exists := s.users.Get(username); exists {
		return models.ErrorReply("Username is already taken")
	}

	user := &repository.User{
		Username:  username,
		Password:  password,
		CreatedAt: time.Now(),
	}
	if err := s.users.Add(user); err != nil {
		log.Printf("[Users] failed to register %s: %v", username, err)
		return models.ErrorReply("Failed to register user")
	}
	log.Printf("[Users] user registered: %s", username)

	commit(s.queue, s.sink, newEvent(models.EventUserCreated, user.Username, s.now(), models.UserCreatedData{
		Username:  user.Username,
		Password:  user.Password,
		CreatedAt: user.CreatedAt.Format(time.RFC3339Nano),
	}))

	return map[string]any{
		"success":  true,
		"message":  "User registered successfully",
		"username": user.Username,
	}
}

func (s *UsersService) login(username, password string) map[string]any {
	user, exists := s.users.Get(username)
	if !exists {
		return models.ErrorReply("User not found")
	}
	if user.Password != password {
		return models.ErrorReply("Incorrect password")
	}

	return map[string]any{
		"success":  true,
		"message":  "Login successful",
		"username": user.Username,
	}
}
