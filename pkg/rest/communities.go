package rest

import (
	"context"
	"net/http"

	"klub/pkg/models"
)

func (c *Client) ListMine(ctx context.Context, communityID string) ([]models.Workspace, error) {
	return do[[]models.Workspace](ctx, c, call{
		method: http.MethodGet,
		path:   []string{"communities", communityID, "workspaces", "mine"},
	})
}

func (c *Client) CreateWorkspace(ctx context.Context, communityID string, in models.WorkspaceInput) (models.Workspace, error) {
	return do[models.Workspace](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", communityID, "workspaces"},
		body:   in,
	})
}

func (c *Client) Community(ctx context.Context, communityID string) (models.Community, error) {
	return do[models.Community](ctx, c, call{
		method: http.MethodGet,
		path:   []string{"communities", communityID},
	})
}
