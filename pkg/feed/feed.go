// Package feed keeps the visible post collection of a community in sync with
// the server. Edits are applied locally first and written behind; a failed
// write rolls back exactly what it changed and raises a toast.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"klub/pkg/models"
	"klub/pkg/notify"
	"klub/pkg/rest"
)

var (
	ErrMissingCommunity   = errors.New("community is not selected")
	ErrMissingWorkspace   = errors.New("workspace is not selected")
	ErrBlankContent       = errors.New("content must not be blank")
	ErrBlankName          = errors.New("workspace name must not be blank")
	ErrDuplicateWorkspace = errors.New("workspace with this name already exists")
	ErrPostNotFound       = errors.New("post not found")
	ErrCommentNotFound    = errors.New("comment not found")
)

// AllWorkspaces is the selector for the community wide view.
const AllWorkspaces = "All"

const (
	defaultPageLimit    = 50
	defaultWriteTimeout = 15 * time.Second
	defaultMaxPages     = 100
)

type PostService interface {
	ListAll(ctx context.Context, communityID string, page, limit int) (models.PostsPage, error)
	ListByWorkspace(ctx context.Context, communityID, workspaceID string, page, limit int) (models.PostsPage, error)
	CreatePost(ctx context.Context, communityID, workspaceID string, in models.PostInput) (models.Post, error)
	UpdatePost(ctx context.Context, communityID, postID, content string) (models.Post, error)
	DeletePost(ctx context.Context, communityID, postID string) error
	LikePost(ctx context.Context, communityID, postID string) (models.Like, error)
	UnlikePost(ctx context.Context, communityID, postID string) error
	CreateComment(ctx context.Context, communityID, postID, content string) (models.Comment, error)
	UpdateComment(ctx context.Context, communityID, postID, commentID, content string) (models.Comment, error)
	DeleteComment(ctx context.Context, communityID, postID, commentID string) error
	LikeComment(ctx context.Context, communityID, postID, commentID string) (models.Like, error)
	UnlikeComment(ctx context.Context, communityID, postID, commentID string) error
}

type WorkspaceService interface {
	ListMine(ctx context.Context, communityID string) ([]models.Workspace, error)
	CreateWorkspace(ctx context.Context, communityID string, in models.WorkspaceInput) (models.Workspace, error)
}

type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	CommunityID string
	User        models.Profile
	PageLimit   int
	// WriteTimeout bounds every write-behind call.
	WriteTimeout time.Duration
	// MaxPages caps how many pages one load fetches.
	MaxPages int

	Now    func() time.Time
	TempID func() string
}

type Synchronizer struct {
	posts      PostService
	workspaces WorkspaceService
	notifier   notify.Notifier
	opts       Options

	mu         sync.Mutex
	state      State
	collection []models.Post
	spaces     []models.Workspace
	target     *models.Workspace
	view       string
	submitting bool
	// seq identifies the latest load; gen counts collection replacements.
	seq      uint64
	gen      uint64
	inflight map[string]struct{}

	wg sync.WaitGroup
}

func New(posts PostService, workspaces WorkspaceService, notifier notify.Notifier, opts Options) *Synchronizer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TempID == nil {
		now := opts.Now
		opts.TempID = func() string {
			return fmt.Sprintf("temp-%d", now().UnixMilli())
		}
	}

	return &Synchronizer{
		posts:      posts,
		workspaces: workspaces,
		notifier:   notifier,
		opts:       opts,
		inflight:   make(map[string]struct{}),
	}
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) Loading() bool {
	return s.State() == Loading
}

func (s *Synchronizer) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Posts returns a deep copy of the current collection.
func (s *Synchronizer) Posts() []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ClonePosts(s.collection)
}

func (s *Synchronizer) Workspaces() []models.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spaces == nil {
		return nil
	}
	return append([]models.Workspace(nil), s.spaces...)
}

// SelectedWorkspace is the workspace CreatePost targets.
func (s *Synchronizer) SelectedWorkspace() (models.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return models.Workspace{}, false
	}
	return *s.target, true
}

// Wait blocks until every outstanding write-behind call has settled.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

func (s *Synchronizer) LoadAll(ctx context.Context) error {
	return s.load(ctx, "")
}

func (s *Synchronizer) LoadByWorkspace(ctx context.Context, workspaceID string) error {
	if strings.TrimSpace(workspaceID) == "" {
		return s.invalid("Failed to load posts", ErrMissingWorkspace)
	}
	return s.load(ctx, workspaceID)
}

// load replaces the collection wholesale. A result that arrives after a newer
// load has started is discarded.
func (s *Synchronizer) load(ctx context.Context, workspaceID string) error {
	if s.opts.CommunityID == "" {
		return s.invalid("Failed to load posts", ErrMissingCommunity)
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.state = Loading
	s.view = workspaceID
	s.mu.Unlock()

	posts, err := s.fetch(ctx, workspaceID)

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		log.Debugf("[feed.load] discarding stale result for workspace %q", workspaceID)
		return nil
	}
	s.gen++
	s.state = Ready
	if err != nil {
		s.collection = nil
		s.mu.Unlock()
		s.fail("Failed to load posts", err)
		return fmt.Errorf("failed to load posts: %w", err)
	}
	s.collection = posts
	s.mu.Unlock()

	log.Debugf("[feed.load] loaded %d posts for workspace %q", len(posts), workspaceID)
	return nil
}

func (s *Synchronizer) fetch(ctx context.Context, workspaceID string) ([]models.Post, error) {
	posts := []models.Post{}
	for page := 1; ; page++ {
		var (
			res models.PostsPage
			err error
		)
		if workspaceID == "" {
			res, err = s.posts.ListAll(ctx, s.opts.CommunityID, page, s.opts.PageLimit)
		} else {
			res, err = s.posts.ListByWorkspace(ctx, s.opts.CommunityID, workspaceID, page, s.opts.PageLimit)
		}
		if err != nil {
			return nil, err
		}

		posts = append(posts, res.Posts...)
		if len(res.Posts) == 0 || page >= res.Pagination.TotalPages {
			return posts, nil
		}
		if page >= s.opts.MaxPages {
			log.Warnf("[feed.fetch] stopped after %d of %d pages, %d posts loaded", page, res.Pagination.TotalPages, len(posts))
			return posts, nil
		}
	}
}

// reload refreshes whatever view is currently active.
func (s *Synchronizer) reload(ctx context.Context) error {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()

	return s.load(ctx, view)
}

func (s *Synchronizer) LoadWorkspaces(ctx context.Context) error {
	if s.opts.CommunityID == "" {
		return s.invalid("Failed to load workspaces", ErrMissingCommunity)
	}

	spaces, err := s.workspaces.ListMine(ctx, s.opts.CommunityID)
	if err != nil {
		s.fail("Failed to load workspaces", err)
		return fmt.Errorf("failed to load workspaces: %w", err)
	}

	s.mu.Lock()
	s.spaces = spaces
	if s.target != nil && indexWorkspace(spaces, s.target.ID) < 0 {
		s.target = nil
	}
	s.mu.Unlock()

	log.Debugf("[feed.LoadWorkspaces] %d workspaces available", len(spaces))
	return nil
}

// SwitchWorkspace resolves a display name such as "General" or "# General",
// or AllWorkspaces, and loads the matching view. Unknown names are ignored.
func (s *Synchronizer) SwitchWorkspace(ctx context.Context, selector string) error {
	if s.opts.CommunityID == "" {
		return s.invalid("Failed to switch workspace", ErrMissingCommunity)
	}

	selector = strings.TrimSpace(selector)
	if strings.EqualFold(selector, AllWorkspaces) {
		s.mu.Lock()
		s.target = nil
		s.mu.Unlock()
		return s.LoadAll(ctx)
	}

	name := strings.TrimSpace(strings.TrimPrefix(selector, "#"))

	s.mu.Lock()
	i := slices.IndexFunc(s.spaces, func(w models.Workspace) bool { return w.Name == name })
	if i < 0 {
		s.mu.Unlock()
		log.Debugf("[feed.SwitchWorkspace] unknown workspace %q", selector)
		return nil
	}
	ws := s.spaces[i]
	s.target = &ws
	s.mu.Unlock()

	return s.load(ctx, ws.ID)
}

func (s *Synchronizer) CreateWorkspace(ctx context.Context, name string, isPrivate bool) error {
	const title = "Failed to create workspace"

	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s.invalid(title, ErrBlankName)
	}

	s.mu.Lock()
	dup := slices.IndexFunc(s.spaces, func(w models.Workspace) bool { return strings.EqualFold(w.Name, name) }) >= 0
	if !dup {
		s.submitting = true
	}
	s.mu.Unlock()
	if dup {
		return s.invalid(title, ErrDuplicateWorkspace)
	}

	ws, err := s.workspaces.CreateWorkspace(ctx, s.opts.CommunityID, models.WorkspaceInput{Name: name, IsPrivate: isPrivate})
	s.setSubmitting(false)
	if err != nil {
		s.fail(title, err)
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	log.Infof("[feed.CreateWorkspace] workspace %s (%s) created", ws.Name, ws.ID)

	if err := s.LoadWorkspaces(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if i := indexWorkspace(s.spaces, ws.ID); i >= 0 {
		ws = s.spaces[i]
	} else {
		s.spaces = append(s.spaces, ws)
	}
	s.target = &ws
	s.mu.Unlock()

	s.notifier.ShowToast(notify.Toast{Type: notify.Success, Title: "Workspace created", Message: ws.Name})
	return s.load(ctx, ws.ID)
}

// CreatePost creates a post in the selected workspace and then reloads the
// active view so the collection carries the server's ids and timestamps.
func (s *Synchronizer) CreatePost(ctx context.Context, content string, media ...string) error {
	const title = "Failed to create post"

	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return s.invalid(title, ErrBlankContent)
	}

	s.mu.Lock()
	if s.target == nil {
		s.mu.Unlock()
		return s.invalid(title, ErrMissingWorkspace)
	}
	workspaceID := s.target.ID
	s.submitting = true
	s.mu.Unlock()

	post, err := s.posts.CreatePost(ctx, s.opts.CommunityID, workspaceID, models.PostInput{Content: content, Media: media})
	s.setSubmitting(false)
	if err != nil {
		s.fail(title, err)
		return fmt.Errorf("failed to create post: %w", err)
	}
	log.Debugf("[feed.CreatePost] post %s created in workspace %s", post.ID, workspaceID)

	return s.reload(ctx)
}

func (s *Synchronizer) setSubmitting(v bool) {
	s.mu.Lock()
	s.submitting = v
	s.mu.Unlock()
}

// writeBehind runs call on a tracked goroutine detached from the caller's
// cancellation and bounded by WriteTimeout.
func (s *Synchronizer) writeBehind(ctx context.Context, op string, call func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
		defer cancel()

		if err := call(ctx); err != nil {
			log.Errorf("[feed.%s] remote write failed: %v", op, err)
			return
		}
		log.Debugf("[feed.%s] remote write confirmed", op)
	}()
}

// snapshot captures the collection for a collection level rollback. Callers
// hold s.mu.
func (s *Synchronizer) snapshot() ([]models.Post, uint64) {
	return models.ClonePosts(s.collection), s.gen
}

// restore puts a snapshot back unless a load replaced the collection since.
func (s *Synchronizer) restore(snap []models.Post, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		log.Debugf("[feed.restore] collection reloaded since snapshot, skipping rollback")
		return
	}
	s.collection = snap
}

// invalid surfaces a validation failure that never reached the network.
func (s *Synchronizer) invalid(title string, err error) error {
	s.notifier.ShowToast(notify.Toast{Type: notify.Error, Title: title, Message: validationMessage(err)})
	return err
}

func (s *Synchronizer) fail(title string, err error) {
	s.notifier.ShowToast(notify.Toast{Type: notify.Error, Title: title, Message: rest.ErrorMessage(err)})
}

func validationMessage(err error) string {
	msg := err.Error()
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// track marks key in flight and reports false if it already was.
// Callers hold s.mu.
func (s *Synchronizer) track(key string) bool {
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Synchronizer) untrack(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *Synchronizer) findPost(postID string) int {
	return slices.IndexFunc(s.collection, func(p models.Post) bool { return p.ID == postID })
}

func findComment(p *models.Post, commentID string) int {
	return slices.IndexFunc(p.Comments, func(c models.Comment) bool { return c.ID == commentID })
}

func indexWorkspace(spaces []models.Workspace, id string) int {
	return slices.IndexFunc(spaces, func(w models.Workspace) bool { return w.ID == id })
}
