package feed

import (
	"context"
	"slices"
	"strings"
)

// UpdatePost edits the post locally and writes the change behind. The
// returned nil does not mean the server accepted the edit; a failed write
// restores the collection as it was before the call.
func (s *Synchronizer) UpdatePost(ctx context.Context, postID, content string) error {
	const title = "Failed to update post"

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
	snap, gen := s.snapshot()
	s.collection[i].Content = content
	s.collection[i].UpdatedAt = s.opts.Now()
	s.mu.Unlock()

	s.writeBehind(ctx, "UpdatePost", func(ctx context.Context) error {
		post, err := s.posts.UpdatePost(ctx, s.opts.CommunityID, postID, content)
		if err != nil {
			s.restore(snap, gen)
			s.fail(title, err)
			return err
		}

		if !post.UpdatedAt.IsZero() {
			s.mu.Lock()
			if i := s.findPost(postID); i >= 0 && s.collection[i].Content == content {
				s.collection[i].UpdatedAt = post.UpdatedAt
			}
			s.mu.Unlock()
		}
		return nil
	})
	return nil
}

// DeletePost removes the post locally and writes the removal behind.
func (s *Synchronizer) DeletePost(ctx context.Context, postID string) error {
	const title = "Failed to delete post"

	if s.opts.CommunityID == "" {
		return s.invalid(title, ErrMissingCommunity)
	}

	s.mu.Lock()
	i := s.findPost(postID)
	if i < 0 {
		s.mu.Unlock()
		return s.invalid(title, ErrPostNotFound)
	}
	snap, gen := s.snapshot()
	s.collection = slices.Delete(s.collection, i, i+1)
	s.mu.Unlock()

	s.writeBehind(ctx, "DeletePost", func(ctx context.Context) error {
		if err := s.posts.DeletePost(ctx, s.opts.CommunityID, postID); err != nil {
			s.restore(snap, gen)
			s.fail(title, err)
			return err
		}
		return nil
	})
	return nil
}
