package repository

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Posts stores publications keyed by id.
type Posts struct {
	mu   sync.Mutex
	byID map[string]*Post
	path string
}

// NewPosts opens the repository, loading an existing snapshot if present.
func NewPosts(path string) (*Posts, error) {
	p := &Posts{
		byID: make(map[string]*Post),
		path: path,
	}
	if err := loadSnapshot(path, &p.byID); err != nil {
		return nil, err
	}
	if len(p.byID) > 0 {
		log.Printf("[Repository] loaded %d posts from %s", len(p.byID), path)
	}
	return p, nil
}

// Add inserts a new post. Fails if the id already exists.
func (p *Posts) Add(post *Post) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byID[post.ID]; ok {
		return fmt.Errorf("post %s: %w", post.ID, ErrAlreadyExists)
	}

	copied := *post
	p.byID[post.ID] = &copied

	if err := saveSnapshot(p.path, p.byID); err != nil {
		delete(p.byID, post.ID)
		return err
	}
	return nil
}

// Update replaces an existing post record.
func (p *Posts) Update(post *Post) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous, ok := p.byID[post.ID]
	if !ok {
		return fmt.Errorf("post %s: %w", post.ID, ErrNotFound)
	}

	copied := *post
	p.byID[post.ID] = &copied
	if err := saveSnapshot(p.path, p.byID); err != nil {
		p.byID[post.ID] = previous
		return err
	}
	return nil
}

// Remove deletes a post by id.
func (p *Posts) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("post %s: %w", id, ErrNotFound)
	}

	delete(p.byID, id)
	if err := saveSnapshot(p.path, p.byID); err != nil {
		p.byID[id] = previous
		return err
	}
	return nil
}

// GetByID returns a copy of the post.
func (p *Posts) GetByID(id string) (*Post, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	post, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	copied := *post
	return &copied, true
}

// GetByUsername returns the user's posts, newest first.
func (p *Posts) GetByUsername(username string) []*Post {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*Post
	for _, post := range p.byID {
		if post.Username == username {
			copied := *post
			out = append(out, &copied)
		}
	}
	sortNewestFirst(out)
	return out
}

// GetRecentByUsers returns up to limit posts authored by any of usernames,
// newest first.
func (p *Posts) GetRecentByUsers(usernames []string, limit int) []*Post {
	authors := make(map[string]bool, len(usernames))
	for _, name := range usernames {
		authors[name] = true
	}

	p.mu.Lock()
	var out []*Post
	for _, post := range p.byID {
		if authors[post.Username] {
			copied := *post
			out = append(out, &copied)
		}
	}
	p.mu.Unlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortNewestFirst(posts []*Post) {
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
