package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/SamirCosta/RedeSocial/internal/repository"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// PostsService answers post CRUD and feed reads.
type PostsService struct {
	posts *repository.Posts
	users *repository.Users
	queue EventQueue
	sink  EventSink
	now   func() int64
}

func NewPostsService(posts *repository.Posts, users *repository.Users, queue EventQueue, sink EventSink, now func() int64) *PostsService {
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &PostsService{posts: posts, users: users, queue: queue, sink: sink, now: now}
}

func (s *PostsService) Handles() []string {
	return []string{
		models.ActionCreatePost,
		models.ActionUpdatePost,
		models.ActionDeletePost,
		models.ActionGetUserPosts,
		models.ActionGetFeed,
	}
}

func (s *PostsService) Dispatch(action string, payload []byte) map[string]any {
	var req struct {
		PostID   string `json:"postId"`
		Username string `json:"username"`
		Content  string `json:"content"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.ErrorReply("malformed request: %v", err)
	}
	if req.Username == "" {
		return models.ErrorReply("username is required")
	}

	switch action {
	case models.ActionCreatePost:
		return s.create(req.Username, req.Content)
	case models.ActionUpdatePost:
		return s.update(req.PostID, req.Username, req.Content)
	case models.ActionDeletePost:
		return s.delete(req.PostID, req.Username)
	case models.ActionGetUserPosts:
		return s.userPosts(req.Username)
	default:
		return s.feed(req.Username, req.Limit)
	}
}

func (s *PostsService) create(username, content string) map[string]any {
	if _, exists := s.users.Get(username); !exists {
		return models.ErrorReply("User not found")
	}
	if content == "" {
		return models.ErrorReply("content is required")
	}

	now := time.Now()
	post := &repository.Post{
		ID:        uuid.NewString(),
		Username:  username,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.posts.Add(post); err != nil {
		log.Printf("[Posts] failed to create post: %v", err)
		return models.ErrorReply("Failed to create post")
	}
	log.Printf("[Posts] post created: %s by %s", post.ID, username)

	commit(s.queue, s.sink, newEvent(models.EventPostCreated, post.ID, s.now(), models.PostData{
		ID:        post.ID,
		Username:  post.Username,
		Content:   post.Content,
		CreatedAt: post.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: post.UpdatedAt.Format(time.RFC3339Nano),
	}))

	return map[string]any{
		"success":   true,
		"message":   "Post created successfully",
		"postId":    post.ID,
		"username":  post.Username,
		"createdAt": post.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *PostsService) update(postID, username, content string) map[string]any {
	if postID == "" {
		return models.ErrorReply("postId is required")
	}
	post, exists := s.posts.GetByID(postID)
	if !exists {
		return models.ErrorReply("Post not found")
	}
	if post.Username != username {
		return models.ErrorReply("Only the author can update the post")
	}

	post.Content = content
	post.UpdatedAt = time.Now()
	if err := s.posts.Update(post); err != nil {
		log.Printf("[Posts] failed to update post %s: %v", postID, err)
		return models.ErrorReply("Failed to update post")
	}
	log.Printf("[Posts] post updated: %s", postID)

	commit(s.queue, s.sink, newEvent(models.EventPostUpdated, post.ID, s.now(), models.PostData{
		ID:        post.ID,
		Content:   post.Content,
		UpdatedAt: post.UpdatedAt.Format(time.RFC3339Nano),
	}))

	return map[string]any{
		"success":   true,
		"message":   "Post updated successfully",
		"postId":    post.ID,
		"updatedAt": post.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (s *PostsService) delete(postID, username string) map[string]any {
	if postID == "" {
		return models.ErrorReply("postId is required")
	}
	post, exists := s.posts.GetByID(postID)
	if !exists {
		return models.ErrorReply("Post not found")
	}
	if post.Username != username {
		return models.ErrorReply("Only the author can delete the post")
	}

	if err := s.posts.Remove(postID); err != nil {
		log.Printf("[Posts] failed to delete post %s: %v", postID, err)
		return models.ErrorReply("Failed to delete post")
	}
	log.Printf("[Posts] post deleted: %s", postID)

	commit(s.queue, s.sink, newEvent(models.EventPostDeleted, postID, s.now(), models.PostData{ID: postID}))

	return map[string]any{
		"success": true,
		"message": "Post deleted successfully",
	}
}

func (s *PostsService) userPosts(username string) map[string]any {
	if _, exists := s.users.Get(username); !exists {
		return models.ErrorReply("User not found")
	}

	posts := s.posts.GetByUsername(username)
	return map[string]any{
		"success": true,
		"posts":   postList(posts),
		"count":   len(posts),
	}
}

func (s *PostsService) feed(username string, limit int) map[string]any {
	user, exists := s.users.Get(username)
	if !exists {
		return models.ErrorReply("User not found")
	}

	// The feed covers followed authors plus the user's own posts.
	authors := append(append([]string(nil), user.Following...), user.Username)
	posts := s.posts.GetRecentByUsers(authors, limit)

	return map[string]any{
		"success": true,
		"posts":   postList(posts),
		"count":   len(posts),
	}
}

func postList(posts []*repository.Post) []map[string]any {
	out := make([]map[string]any, 0, len(posts))
	for _, post := range posts {
		out = append(out, map[string]any{
			"id":        post.ID,
			"username":  post.Username,
			"content":   post.Content,
			"createdAt": post.CreatedAt.Format(time.RFC3339Nano),
			"updatedAt": post.UpdatedAt.Format(time.RFC3339Nano),
		})
	}
	return out
}
