package repository

import (
	"path/filepath"
	"testing"
	"time"
)

func TestUsersCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	users, err := NewUsers(path)
	if err != nil {
		t.Fatalf("NewUsers failed: %v", err)
	}

	alice := &User{Username: "Alice", Password: "pw", CreatedAt: time.Now()}
	if err := users.Add(alice); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, ok := users.Get("alice")
	if !ok {
		t.Fatal("Lookup with different casing must find the user")
	}
	if got.Username != "Alice" {
		t.Errorf("Original casing must be preserved, got %s", got.Username)
	}

	upper, _ := users.Get("ALICE")
	if upper == nil || upper.Username != got.Username {
		t.Error("All casings must resolve to the same record")
	}

	if err := users.Add(&User{Username: "ALICE", Password: "other"}); err == nil {
		t.Error("Adding a username that differs only by case must fail")
	}
}

func TestUsersPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	users, _ := NewUsers(path)
	alice := &User{Username: "alice", Password: "pw", CreatedAt: time.Now()}
	if err := users.Add(alice); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	alice.AddFollower("bob")
	if err := users.Update(alice); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reloaded, err := NewUsers(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got, ok := reloaded.Get("alice")
	if !ok {
		t.Fatal("User must survive a reload")
	}
	if !got.HasFollower("bob") {
		t.Error("Follower set must survive a reload")
	}
}

func TestUsersGetReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	users, _ := NewUsers(path)
	users.Add(&User{Username: "alice", Password: "pw"})

	first, _ := users.Get("alice")
	first.AddFollower("mallory")

	second, _ := users.Get("alice")
	if second.HasFollower("mallory") {
		t.Error("Mutating a returned record must not affect the store")
	}
}

func TestFollowSetHelpers(t *testing.T) {
	u := &User{Username: "alice"}

	u.AddFollowing("bob")
	u.AddFollowing("bob")
	if len(u.Following) != 1 {
		t.Errorf("Following must be a set, got %v", u.Following)
	}
	if !u.IsFollowing("bob") {
		t.Error("Expected alice to follow bob")
	}

	u.RemoveFollowing("bob")
	if u.IsFollowing("bob") {
		t.Error("Expected follow to be removed")
	}
	u.RemoveFollowing("bob") // no-op
}

func TestPostsCRUDAndOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	posts, err := NewPosts(path)
	if err != nil {
		t.Fatalf("NewPosts failed: %v", err)
	}

	base := time.Now()
	for i, id := range []string{"p1", "p2", "p3"} {
		post := &Post{
			ID:        id,
			Username:  "alice",
			Content:   "post " + id,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := posts.Add(post); err != nil {
			t.Fatalf("Add %s failed: %v", id, err)
		}
	}

	if err := posts.Add(&Post{ID: "p1"}); err == nil {
		t.Error("Duplicate id must fail")
	}

	byUser := posts.GetByUsername("alice")
	if len(byUser) != 3 {
		t.Fatalf("Expected 3 posts, got %d", len(byUser))
	}
	if byUser[0].ID != "p3" || byUser[2].ID != "p1" {
		t.Errorf("Posts must be newest first, got %s..%s", byUser[0].ID, byUser[2].ID)
	}

	p2, _ := posts.GetByID("p2")
	p2.Content = "edited"
	p2.UpdatedAt = base.Add(time.Hour)
	if err := posts.Update(p2); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ := posts.GetByID("p2")
	if got.Content != "edited" {
		t.Errorf("Expected edited content, got %q", got.Content)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("updatedAt must not precede createdAt")
	}

	if err := posts.Remove("p2"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := posts.GetByID("p2"); ok {
		t.Error("Removed post must be gone")
	}
	if err := posts.Remove("p2"); err == nil {
		t.Error("Removing a missing post must fail")
	}
}

func TestPostsFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	posts, _ := NewPosts(path)

	base := time.Now()
	authors := []string{"alice", "bob", "carol", "alice", "bob", "dave"}
	for i, author := range authors {
		posts.Add(&Post{
			ID:        []string{"p0", "p1", "p2", "p3", "p4", "p5"}[i],
			Username:  author,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	feed := posts.GetRecentByUsers([]string{"alice", "bob"}, 3)
	if len(feed) != 3 {
		t.Fatalf("Expected feed limited to 3, got %d", len(feed))
	}
	if feed[0].ID != "p4" || feed[1].ID != "p3" || feed[2].ID != "p1" {
		t.Errorf("Unexpected feed order: %s %s %s", feed[0].ID, feed[1].ID, feed[2].ID)
	}
}

func TestMessagesConversation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	messages, err := NewMessages(path)
	if err != nil {
		t.Fatalf("NewMessages failed: %v", err)
	}

	base := time.Now()
	add := func(id, from, to string, offset time.Duration) {
		if err := messages.Add(&Message{
			ID:               id,
			SenderUsername:   from,
			ReceiverUsername: to,
			Content:          id,
			SentAt:           base.Add(offset),
		}); err != nil {
			t.Fatalf("Add %s failed: %v", id, err)
		}
	}
	add("m1", "alice", "bob", 0)
	add("m2", "bob", "alice", time.Second)
	add("m3", "alice", "carol", 2*time.Second)
	add("m4", "alice", "bob", 3*time.Second)

	conv := messages.GetConversation("alice", "bob")
	if len(conv) != 3 {
		t.Fatalf("Expected 3 messages in conversation, got %d", len(conv))
	}
	if conv[0].ID != "m1" || conv[2].ID != "m4" {
		t.Errorf("Conversation must ascend by send time, got %s..%s", conv[0].ID, conv[2].ID)
	}

	unread := messages.GetUnreadByReceiver("bob")
	if len(unread) != 2 {
		t.Fatalf("Expected 2 unread for bob, got %d", len(unread))
	}

	m1, _ := messages.GetByID("m1")
	readAt := base.Add(time.Minute)
	m1.Read = true
	m1.ReadAt = &readAt
	if err := messages.Update(m1); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	unread = messages.GetUnreadByReceiver("bob")
	if len(unread) != 1 || unread[0].ID != "m4" {
		t.Errorf("Expected only m4 unread, got %v", unread)
	}
}

func TestMessagesPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	messages, _ := NewMessages(path)

	readAt := time.Now()
	messages.Add(&Message{ID: "m1", SenderUsername: "alice", ReceiverUsername: "bob", SentAt: time.Now(), Read: true, ReadAt: &readAt})

	reloaded, err := NewMessages(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got, ok := reloaded.GetByID("m1")
	if !ok {
		t.Fatal("Message must survive a reload")
	}
	if !got.Read || got.ReadAt == nil {
		t.Error("Read state must survive a reload")
	}
}
