// Package fakeklub is an in-memory klub backend speaking the same REST
// dialect as pkg/rest. It backs the integration tests and the CLI's offline
// demo mode.
package fakeklub

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"klub/pkg/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type orderKind int

const (
	courseOrder orderKind = iota + 1
	communityOrder
	joinOrder
)

type order struct {
	models.Order
	kind        orderKind
	communityID string
	courseID    string
	verified    bool
}

// Course is a purchasable course.
type Course struct {
	ID          string
	CommunityID string
	Price       int64
}

// Store keeps all state in memory behind one mutex.
type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	communities map[string]models.Community
	courses     map[string]Course
	workspaces  map[string][]models.Workspace
	posts       map[string][]models.Post
	orders      map[string]*order
	members     map[string]bool
	purchases   map[string]bool
}

func NewStore() *Store {
	return &Store{
		now:         time.Now,
		communities: make(map[string]models.Community),
		courses:     make(map[string]Course),
		workspaces:  make(map[string][]models.Workspace),
		posts:       make(map[string][]models.Post),
		orders:      make(map[string]*order),
		members:     make(map[string]bool),
		purchases:   make(map[string]bool),
	}
}

func newID(prefix string) string {
	id, err := uuid.NewV4()
	if err != nil {
		return prefix + time.Now().Format("150405.000000000")
	}
	return prefix + strings.ReplaceAll(id.String(), "-", "")[:14]
}

func (s *Store) AddCommunity(c models.Community) models.Community {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = newID("c_")
	}
	s.communities[c.ID] = c
	return c
}

func (s *Store) AddCourse(c Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

func (s *Store) Community(id string) (models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.communities[id]
	if !ok {
		return models.Community{}, ErrNotFound
	}
	return c, nil
}

// Member reports whether the community was joined through a verified payment
// or a free join.
func (s *Store) Member(communityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[communityID]
}

func (s *Store) Purchased(courseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchases[courseID]
}

func (s *Store) Workspaces(communityID string) ([]models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[communityID]; !ok {
		return nil, ErrNotFound
	}
	return append([]models.Workspace{}, s.workspaces[communityID]...), nil
}

func (s *Store) CreateWorkspace(communityID string, in models.WorkspaceInput) (models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[communityID]; !ok {
		return models.Workspace{}, ErrNotFound
	}
	for _, w := range s.workspaces[communityID] {
		if strings.EqualFold(w.Name, in.Name) {
			return models.Workspace{}, ErrConflict
		}
	}

	w := models.Workspace{ID: newID("w_"), Name: in.Name, CommunityID: communityID, IsPrivate: in.IsPrivate}
	s.workspaces[communityID] = append(s.workspaces[communityID], w)
	return w, nil
}

// Posts returns one page of posts, newest first, and the number of pages.
// An empty workspaceID lists the whole community.
func (s *Store) Posts(communityID, workspaceID string, page, limit int) ([]models.Post, int, error) {
	s.mu.Lock()
	if _, ok := s.communities[communityID]; !ok {
		s.mu.Unlock()
		return nil, 0, ErrNotFound
	}
	var all []models.Post
	for _, p := range s.posts[communityID] {
		if workspaceID == "" || p.WorkspaceID == workspaceID {
			all = append(all, p.Clone())
		}
	}
	s.mu.Unlock()

	if limit <= 0 {
		return []models.Post{}, 0, nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	numPages := (total + limit - 1) / limit

	pageIndex := page - 1
	if pageIndex < 0 {
		pageIndex = 0
	}
	start := pageIndex * limit
	if start >= total {
		return []models.Post{}, numPages, nil
	}
	end := min(start+limit, total)

	return all[start:end], numPages, nil
}

func (s *Store) CreatePost(communityID, workspaceID string, author models.Author, in models.PostInput) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.IndexFunc(s.workspaces[communityID], func(w models.Workspace) bool { return w.ID == workspaceID }) < 0 {
		return models.Post{}, ErrNotFound
	}

	now := s.now().UTC()
	p := models.Post{
		ID:          newID("p_"),
		WorkspaceID: workspaceID,
		Author:      author,
		Content:     in.Content,
		Media:       in.Media,
		Likes:       []models.Like{},
		Comments:    []models.Comment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.posts[communityID] = append(s.posts[communityID], p)
	return p.Clone(), nil
}

// post returns a pointer into the store. Callers hold s.mu.
func (s *Store) post(communityID, postID string) (*models.Post, error) {
	posts := s.posts[communityID]
	i := slices.IndexFunc(posts, func(p models.Post) bool { return p.ID == postID })
	if i < 0 {
		return nil, ErrNotFound
	}
	return &posts[i], nil
}

// comment returns a pointer into the store. Callers hold s.mu.
func (s *Store) comment(communityID, postID, commentID string) (*models.Post, int, error) {
	p, err := s.post(communityID, postID)
	if err != nil {
		return nil, 0, err
	}
	j := slices.IndexFunc(p.Comments, func(c models.Comment) bool { return c.ID == commentID })
	if j < 0 {
		return nil, 0, ErrNotFound
	}
	return p, j, nil
}

func (s *Store) UpdatePost(communityID, postID, content string) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.post(communityID, postID)
	if err != nil {
		return models.Post{}, err
	}
	p.Content = content
	p.UpdatedAt = s.now().UTC()
	return p.Clone(), nil
}

func (s *Store) DeletePost(communityID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := s.posts[communityID]
	i := slices.IndexFunc(posts, func(p models.Post) bool { return p.ID == postID })
	if i < 0 {
		return ErrNotFound
	}
	s.posts[communityID] = slices.Delete(posts, i, i+1)
	return nil
}

func (s *Store) CreateComment(communityID, postID string, author models.Author, content string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.post(communityID, postID)
	if err != nil {
		return models.Comment{}, err
	}
	now := s.now().UTC()
	c := models.Comment{
		ID:        newID("c_"),
		PostID:    postID,
		Author:    author,
		Content:   content,
		Likes:     []models.Like{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.Comments = append(p.Comments, c)
	return c.Clone(), nil
}

func (s *Store) UpdateComment(communityID, postID, commentID, content string) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, j, err := s.comment(communityID, postID, commentID)
	if err != nil {
		return models.Comment{}, err
	}
	p.Comments[j].Content = content
	p.Comments[j].UpdatedAt = s.now().UTC()
	return p.Comments[j].Clone(), nil
}

func (s *Store) DeleteComment(communityID, postID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, j, err := s.comment(communityID, postID, commentID)
	if err != nil {
		return err
	}
	p.Comments = slices.Delete(p.Comments, j, j+1)
	return nil
}

// Like adds userID's like to a post, or to a comment when commentID is set.
func (s *Store) Like(communityID, postID, commentID, userID string) (models.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	likes, err := s.likes(communityID, postID, commentID)
	if err != nil {
		return models.Like{}, err
	}
	if models.LikedBy(*likes, userID) >= 0 {
		return models.Like{}, ErrConflict
	}

	l := models.Like{ID: newID("l_"), UserID: userID, CreatedAt: s.now().UTC()}
	if commentID != "" {
		l.CommentID = commentID
	} else {
		l.PostID = postID
	}
	*likes = append(*likes, l)
	return l, nil
}

func (s *Store) Unlike(communityID, postID, commentID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	likes, err := s.likes(communityID, postID, commentID)
	if err != nil {
		return err
	}
	i := models.LikedBy(*likes, userID)
	if i < 0 {
		return ErrNotFound
	}
	*likes = slices.Delete(*likes, i, i+1)
	return nil
}

// likes returns the like list to mutate. Callers hold s.mu.
func (s *Store) likes(communityID, postID, commentID string) (*[]models.Like, error) {
	if commentID == "" {
		p, err := s.post(communityID, postID)
		if err != nil {
			return nil, err
		}
		return &p.Likes, nil
	}
	p, j, err := s.comment(communityID, postID, commentID)
	if err != nil {
		return nil, err
	}
	return &p.Comments[j].Likes, nil
}
