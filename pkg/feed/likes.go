package feed

import (
	"context"
	"slices"

	log "github.com/sirupsen/logrus"

	"klub/pkg/models"
)

// likeTarget is a post, or a comment when commentID is set.
type likeTarget struct {
	postID    string
	commentID string
}

func (t likeTarget) key() string {
	if t.commentID != "" {
		return "comment:" + t.commentID
	}
	return "post:" + t.postID
}

// likesOf returns the like list of the target. Callers hold s.mu.
func (s *Synchronizer) likesOf(t likeTarget) (*[]models.Like, error) {
	i := s.findPost(t.postID)
	if i < 0 {
		return nil, ErrPostNotFound
	}
	if t.commentID == "" {
		return &s.collection[i].Likes, nil
	}
	j := findComment(&s.collection[i], t.commentID)
	if j < 0 {
		return nil, ErrCommentNotFound
	}
	return &s.collection[i].Comments[j].Likes, nil
}

func (s *Synchronizer) LikePost(ctx context.Context, postID string) error {
	return s.like(ctx, likeTarget{postID: postID}, "Failed to like post")
}

func (s *Synchronizer) UnlikePost(ctx context.Context, postID string) error {
	return s.unlike(ctx, likeTarget{postID: postID}, "Failed to unlike post")
}

func (s *Synchronizer) LikeComment(ctx context.Context, postID, commentID string) error {
	return s.like(ctx, likeTarget{postID: postID, commentID: commentID}, "Failed to like comment")
}

func (s *Synchronizer) UnlikeComment(ctx context.Context, postID, commentID string) error {
	return s.unlike(ctx, likeTarget{postID: postID, commentID: commentID}, "Failed to unlike comment")
}

// like adds the current user's like and writes it behind. A failed write
// removes only that like. Liking twice, or while a like or unlike of the same
// target is still in flight, is a no-op.
func (s *Synchronizer) like(ctx context.Context, t likeTarget, title string) error {
	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}
	userID := s.opts.User.ID

	s.mu.Lock()
	likes, err := s.likesOf(t)
	if err != nil {
		s.mu.Unlock()
		return s.invalid(title, err)
	}
	if models.LikedBy(*likes, userID) >= 0 || !s.track(t.key()) {
		s.mu.Unlock()
		log.Debugf("[feed.like] %s already liked or in flight", t.key())
		return nil
	}
	wasNil := *likes == nil
	temp := models.Like{
		ID:        s.opts.TempID(),
		PostID:    t.postID,
		CommentID: t.commentID,
		UserID:    userID,
		CreatedAt: s.opts.Now(),
	}
	if t.commentID != "" {
		temp.PostID = ""
	}
	*likes = append(*likes, temp)
	s.mu.Unlock()

	s.writeBehind(ctx, "like", func(ctx context.Context) error {
		defer s.untrack(t.key())

		var (
			like models.Like
			err  error
		)
		if t.commentID == "" {
			like, err = s.posts.LikePost(ctx, s.opts.CommunityID, t.postID)
		} else {
			like, err = s.posts.LikeComment(ctx, s.opts.CommunityID, t.postID, t.commentID)
		}

		s.mu.Lock()
		if likes, lerr := s.likesOf(t); lerr == nil {
			j := slices.IndexFunc(*likes, func(l models.Like) bool { return l.ID == temp.ID && l.UserID == userID })
			switch {
			case j < 0:
			case err != nil:
				*likes = slices.Delete(*likes, j, j+1)
				if len(*likes) == 0 && wasNil {
					*likes = nil
				}
			case like.ID != "":
				(*likes)[j] = like
			}
		}
		s.mu.Unlock()

		if err != nil {
			s.fail(title, err)
		}
		return err
	})
	return nil
}

// unlike removes the current user's like and writes it behind. A failed
// write puts that like back at its old position.
func (s *Synchronizer) unlike(ctx context.Context, t likeTarget, title string) error {
	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}
	userID := s.opts.User.ID

	s.mu.Lock()
	likes, err := s.likesOf(t)
	if err != nil {
		s.mu.Unlock()
		return s.invalid(title, err)
	}
	j := models.LikedBy(*likes, userID)
	if j < 0 || !s.track(t.key()) {
		s.mu.Unlock()
		log.Debugf("[feed.unlike] %s not liked or in flight", t.key())
		return nil
	}
	removed := (*likes)[j]
	*likes = slices.Delete(*likes, j, j+1)
	s.mu.Unlock()

	s.writeBehind(ctx, "unlike", func(ctx context.Context) error {
		defer s.untrack(t.key())

		var err error
		if t.commentID == "" {
			err = s.posts.UnlikePost(ctx, s.opts.CommunityID, t.postID)
		} else {
			err = s.posts.UnlikeComment(ctx, s.opts.CommunityID, t.postID, t.commentID)
		}
		if err == nil {
			return nil
		}

		s.mu.Lock()
		if likes, lerr := s.likesOf(t); lerr == nil && models.LikedBy(*likes, userID) < 0 {
			*likes = slices.Insert(*likes, min(j, len(*likes)), removed)
		}
		s.mu.Unlock()

		s.fail(title, err)
		return err
	})
	return nil
}
