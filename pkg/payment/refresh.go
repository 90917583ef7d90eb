package payment

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"klub/pkg/models"
)

// CommunitySource is the read side needed after a successful join.
type CommunitySource interface {
	Community(ctx context.Context, communityID string) (models.Community, error)
	ListMine(ctx context.Context, communityID string) ([]models.Workspace, error)
}

type Refreshed struct {
	Community  models.Community
	Workspaces []models.Workspace
}

// JoinRefresher re-fetches the joined community and its workspaces
// concurrently and hands both to apply. Other flows are left alone.
func JoinRefresher(src CommunitySource, apply func(Refreshed)) RefreshFunc {
	return func(ctx context.Context, p Purchase, _ models.VerificationResult) error {
		if p.Flow != JoinCommunity {
			return nil
		}

		var r Refreshed
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			c, err := src.Community(ctx, p.CommunityID)
			r.Community = c
			return err
		})
		g.Go(func() error {
			ws, err := src.ListMine(ctx, p.CommunityID)
			r.Workspaces = ws
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		log.Debugf("[payment.JoinRefresher] community %s refreshed with %d workspaces", r.Community.ID, len(r.Workspaces))
		if apply != nil {
			apply(r)
		}
		return nil
	}
}
