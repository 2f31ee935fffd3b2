package repository

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Users stores accounts keyed by lowercase username.
type Users struct {
	mu     sync.Mutex
	byName map[string]*User
	path   string
}

// NewUsers opens the repository, loading an existing snapshot if present.
func NewUsers(path string) (*Users, error) {
	u := &Users{
		byName: make(map[string]*User),
		path:   path,
	}
	if err := loadSnapshot(path, &u.byName); err != nil {
		return nil, err
	}
	if len(u.byName) > 0 {
		log.Printf("[Repository] loaded %d users from %s", len(u.byName), path)
	}
	return u, nil
}

// Add inserts a new user. Fails if the username is taken (case-insensitive).
func (u *Users) Add(user *User) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, ok := u.byName[key]; ok {
		return fmt.Errorf("user %s: %w", user.Username, ErrAlreadyExists)
	}

	copied := cloneUser(user)
	u.byName[key] = copied

	if err := saveSnapshot(u.path, u.byName); err != nil {
		delete(u.byName, key)
		return err
	}
	log.Printf("[Repository] user added: %s", user.Username)
	return nil
}

// Get returns a copy of the user, looked up case-insensitively.
func (u *Users) Get(username string) (*User, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.byName[strings.ToLower(username)]
	if !ok {
		return nil, false
	}
	return cloneUser(user), true
}

// Update replaces an existing user record.
func (u *Users) Update(user *User) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := strings.ToLower(user.Username)
	previous, ok := u.byName[key]
	if !ok {
		return fmt.Errorf("user %s: %w", user.Username, ErrNotFound)
	}

	u.byName[key] = cloneUser(user)
	if err := saveSnapshot(u.path, u.byName); err != nil {
		u.byName[key] = previous
		return err
	}
	return nil
}

func cloneUser(user *User) *User {
	copied := *user
	copied.Followers = append([]string(nil), user.Followers...)
	copied.Following = append([]string(nil), user.Following...)
	return &copied
}

// AddFollower records follower in the user's follower set.
func (user *User) AddFollower(follower string) { user.Followers = appendUnique(user.Followers, follower) }

// RemoveFollower drops follower from the user's follower set.
func (user *User) RemoveFollower(follower string) { user.Followers = remove(user.Followers, follower) }

// AddFollowing records followed in the user's following set.
func (user *User) AddFollowing(followed string) { user.Following = appendUnique(user.Following, followed) }

// RemoveFollowing drops followed from the user's following set.
func (user *User) RemoveFollowing(followed string) { user.Following = remove(user.Following, followed) }

// IsFollowing reports whether the user follows followed.
func (user *User) IsFollowing(followed string) bool { return contains(user.Following, followed) }

// HasFollower reports whether follower follows the user.
func (user *User) HasFollower(follower string) bool { return contains(user.Followers, follower) }
