package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/SamirCosta/RedeSocial/internal/repository"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// FollowService answers the follow graph actions.
type FollowService struct {
	users *repository.Users
	queue EventQueue
	sink  EventSink
	now   func() int64
}

func NewFollowService(users *repository.Users, queue EventQueue, sink EventSink, now func() int64) *FollowService {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &FollowService{users: users, queue: queue, sink: sink, now: now}
}

func (s *FollowService) Handles() []string {
	return []string{
		models.ActionFollowUser,
		models.ActionUnfollowUser,
		models.ActionGetFollowers,
		models.ActionGetFollowing,
	}
}

func (s *FollowService) Dispatch(action string, payload []byte) map[string]any {
	switch action {
	case models.ActionFollowUser, models.ActionUnfollowUser:
		var req struct {
			FollowerUsername string `json:"followerUsername"`
			FollowedUsername string `json:"followedUsername"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return models.ErrorReply("malformed request: %v", err)
		}
		if req.FollowerUsername == "" || req.FollowedUsername == "" {
			return models.ErrorReply("followerUsername and followedUsername are required")
		}
		if action == models.ActionFollowUser {
			return s.follow(req.FollowerUsername, req.FollowedUsername)
		}
		return s.unfollow(req.FollowerUsername, req.FollowedUsername)

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
		if action == models.ActionGetFollowers {
			return s.followers(req.Username)
		}
		return s.following(req.Username)
	}
}

func (s *FollowService) follow(followerName, followedName string) map[string]any {
	follower, exists := s.users.Get(followerName)
	if !exists {
		return models.ErrorReply("Follower not found")
	}
	followed, exists := s.users.Get(followedName)
	if !exists {
		return models.ErrorReply("User to follow not found")
	}

	if follower.IsFollowing(followed.Username) {
		return models.ErrorReply("Already following this user")
	}
	if follower.Username == followed.Username {
		return models.ErrorReply("Cannot follow yourself")
	}

	follower.AddFollowing(followed.Username)
	followed.AddFollower(follower.Username)

	if err := s.users.Update(follower); err != nil {
		log.Printf("[Follow] failed to update %s: %v", follower.Username, err)
		return models.ErrorReply("Failed to follow user")
	}
	if err := s.users.Update(followed); err != nil {
		log.Printf("[Follow] failed to update %s: %v", followed.Username, err)
		return models.ErrorReply("Failed to follow user")
	}
	log.Printf("[Follow] %s now follows %s", follower.Username, followed.Username)

	commit(s.queue, s.sink, newEvent(models.EventFollowAdded,
		followed.Username+"_"+follower.Username, s.now(), models.FollowData{
			Username:         followed.Username,
			FollowerUsername: follower.Username,
		}))

	return map[string]any{
		"success": true,
		"message": "Now following " + followed.Username,
	}
}

func (s *FollowService) unfollow(followerName, followedName string) map[string]any {
	follower, exists := s.users.Get(followerName)
	if !exists {
		return models.ErrorReply("Follower not found")
	}
	followed, exists := s.users.Get(followedName)
	if !exists {
		return models.ErrorReply("User to unfollow not found")
	}

	if !follower.IsFollowing(followed.Username) {
		return models.ErrorReply("Not following this user")
	}

	follower.RemoveFollowing(followed.Username)
	followed.RemoveFollower(follower.Username)

	if err := s.users.Update(follower); err != nil {
		log.Printf("[Follow] failed to update %s: %v", follower.Username, err)
		return models.ErrorReply("Failed to unfollow user")
	}
	if err := s.users.Update(followed); err != nil {
		log.Printf("[Follow] failed to update %s: %v", followed.Username, err)
		return models.ErrorReply("Failed to unfollow user")
	}
	log.Printf("[Follow] %s no longer follows %s", follower.Username, followed.Username)

	commit(s.queue, s.sink, newEvent(models.EventFollowRemoved,
		followed.Username+"_"+follower.Username, s.now(), models.FollowData{
			Username:         followed.Username,
			FollowerUsername: follower.Username,
		}))

	return map[string]any{
		"success": true,
		"message": "Unfollowed " + followed.Username,
	}
}

func (s *FollowService) followers(username string) map[string]any {
	user, exists := s.users.Get(username)
	if !exists {
		return models.ErrorReply("User not found")
	}
	return map[string]any{
		"success":   true,
		"followers": stringList(user.Followers),
		"count":     len(user.Followers),
	}
}

func (s *FollowService) following(username string) map[string]any {
	user, exists := s.users.Get(username)
	if !exists {
		return models.ErrorReply("User not found")
	}
	return map[string]any{
		"success":   true,
		"following": stringList(user.Following),
		"count":     len(user.Following),
	}
}

func stringList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
