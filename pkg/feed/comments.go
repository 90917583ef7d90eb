package feed

import (
	"context"
	"slices"
	"strings"

	"klub/pkg/models"
)

// CreateComment appends a comment with a temporary id right away. When the
// server answers, the temporary comment is swapped in place for the server's
// one; when it fails, the temporary comment is removed.
func (s *Synchronizer) CreateComment(ctx context.Context, postID, content string) error {
	const title = "Failed to add comment"

	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return s.invalid(title, ErrBlankContent)
	}

	s.mu.Lock()
	i := s.findPost(postID)
	if i < 0 {
		s.mu.Unlock()
		return s.invalid(title, ErrPostNotFound)
	}
	post := &s.collection[i]

	tempID := s.opts.TempID()
	for findComment(post, tempID) >= 0 {
		tempID += "-1"
	}
	now := s.opts.Now()
	post.Comments = append(post.Comments, models.Comment{
		ID:     tempID,
		PostID: postID,
		Author: models.Author{
			ID:   s.opts.User.ID,
			Name: s.opts.User.Name,
		},
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	})
	s.mu.Unlock()

	s.writeBehind(ctx, "CreateComment", func(ctx context.Context) error {
		comment, err := s.posts.CreateComment(ctx, s.opts.CommunityID, postID, content)

		s.mu.Lock()
		defer func() {
			s.mu.Unlock()
			if err != nil {
				s.fail(title, err)
			}
		}()

		i := s.findPost(postID)
		if i < 0 {
			return err
		}
		post := &s.collection[i]
		j := findComment(post, tempID)
		if j < 0 {
			return err
		}

		if err != nil {
			post.Comments = slices.Delete(post.Comments, j, j+1)
			return err
		}
		if comment.PostID == "" {
			comment.PostID = postID
		}
		post.Comments[j] = comment
		return nil
	})
	return nil
}

func (s *Synchronizer) UpdateComment(ctx context.Context, postID, commentID, content string) error {
	const title = "Failed to update comment"

	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return s.invalid(title, ErrBlankContent)
	}

	s.mu.Lock()
	i := s.findPost(postID)
	if i < 0 {
		s.mu.Unlock()
		return s.invalid(title, ErrPostNotFound)
	}
	j := findComment(&s.collection[i], commentID)
	if j < 0 {
		s.mu.Unlock()
		return s.invalid(title, ErrCommentNotFound)
	}
	snap, gen := s.snapshot()
	s.collection[i].Comments[j].Content = content
	s.collection[i].Comments[j].UpdatedAt = s.opts.Now()
	s.mu.Unlock()

	s.writeBehind(ctx, "UpdateComment", func(ctx context.Context) error {
		if _, err := s.posts.UpdateComment(ctx, s.opts.CommunityID, postID, commentID, content); err != nil {
			s.restore(snap, gen)
			s.fail(title, err)
			return err
		}
		return nil
	})
	return nil
}

func (s *Synchronizer) DeleteComment(ctx context.Context, postID, commentID string) error {
	const title = "Failed to delete comment"

	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}

	s.mu.Lock()
	i := s.findPost(postID)
	if i < 0 {
		s.mu.Unlock()
		return s.invalid(title, ErrPostNotFound)
	}
	j := findComment(&s.collection[i], commentID)
	if j < 0 {
		s.mu.Unlock()
		return s.invalid(title, ErrCommentNotFound)
	}
	snap, gen := s.snapshot()
	s.collection[i].Comments = slices.Delete(s.collection[i].Comments, j, j+1)
	s.mu.Unlock()

	s.writeBehind(ctx, "DeleteComment", func(ctx context.Context) error {
		if err := s.posts.DeleteComment(ctx, s.opts.CommunityID, postID, commentID); err != nil {
			s.restore(snap, gen)
			s.fail(title, err)
			return err
		}
		return nil
	})
	return nil
}
