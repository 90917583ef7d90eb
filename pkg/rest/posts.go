package rest

import (
	"context"
	"net/http"

	"klub/pkg/models"
)

type contentBody struct {
	Content string `json:"content"`
}

func (c *Client) ListAll(ctx context.Context, communityID string, page, limit int) (models.PostsPage, error) {
	return do[models.PostsPage](ctx, c, call{
		method: http.MethodGet,
		path:   []string{"communities", communityID, "posts"},
		query:  pageQuery(page, limit),
	})
}

func (c *Client) ListByWorkspace(ctx context.Context, communityID, workspaceID string, page, limit int) (models.PostsPage, error) {
	return do[models.PostsPage](ctx, c, call{
		method: http.MethodGet,
		path:   []string{"communities", communityID, "workspaces", workspaceID, "posts"},
		query:  pageQuery(page, limit),
	})
}

func (c *Client) CreatePost(ctx context.Context, communityID, workspaceID string, in models.PostInput) (models.Post, error) {
	return do[models.Post](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", communityID, "workspaces", workspaceID, "posts"},
		body:   in,
	})
}

func (c *Client) UpdatePost(ctx context.Context, communityID, postID, content string) (models.Post, error) {
	return do[models.Post](ctx, c, call{
		method: http.MethodPatch,
		path:   []string{"communities", communityID, "posts", postID},
		body:   contentBody{Content: content},
	})
}

func (c *Client) DeletePost(ctx context.Context, communityID, postID string) error {
	_, err := do[struct{}](ctx, c, call{
		method: http.MethodDelete,
		path:   []string{"communities", communityID, "posts", postID},
	})
	return err
}

func (c *Client) LikePost(ctx context.Context, communityID, postID string) (models.Like, error) {
	return do[models.Like](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", communityID, "posts", postID, "like"},
	})
}

func (c *Client) UnlikePost(ctx context.Context, communityID, postID string) error {
	_, err := do[struct{}](ctx, c, call{
		method: http.MethodDelete,
		path:   []string{"communities", communityID, "posts", postID, "like"},
	})
	return err
}

func (c *Client) CreateComment(ctx context.Context, communityID, postID, content string) (models.Comment, error) {
	return do[models.Comment](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", communityID, "posts", postID, "comments"},
		body:   contentBody{Content: content},
	})
}

func (c *Client) UpdateComment(ctx context.Context, communityID, postID, commentID, content string) (models.Comment, error) {
	return do[models.Comment](ctx, c, call{
		method: http.MethodPatch,
		path:   []string{"communities", communityID, "posts", postID, "comments", commentID},
		body:   contentBody{Content: content},
	})
}

func (c *Client) DeleteComment(ctx context.Context, communityID, postID, commentID string) error {
	_, err := do[struct{}](ctx, c, call{
		method: http.MethodDelete,
		path:   []string{"communities", communityID, "posts", postID, "comments", commentID},
	})
	return err
}

func (c *Client) LikeComment(ctx context.Context, communityID, postID, commentID string) (models.Like, error) {
	return do[models.Like](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", communityID, "posts", postID, "comments", commentID, "like"},
	})
}

func (c *Client) UnlikeComment(ctx context.Context, communityID, postID, commentID string) error {
	_, err := do[struct{}](ctx, c, call{
		method: http.MethodDelete,
		path:   []string{"communities", communityID, "posts", postID, "comments", commentID, "like"},
	})
	return err
}
