package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"klub/pkg/models"
)

// Course purchases are one-off orders.

func (c *Client) CreateCourseOrder(ctx context.Context, communityID, courseID string) (models.Order, error) {
	return do[models.Order](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", communityID, "courses", courseID, "order"},
	})
}

func (c *Client) VerifyCoursePayment(ctx context.Context, v models.PaymentVerification) (models.VerificationResult, error) {
	return verify(ctx, c, call{
		method: http.MethodPost,
		path:   []string{"payments", "course", "verify"},
		body:   v,
	})
}

// Community creation and joining are subscriptions.

func (c *Client) CreateCommunityOrder(ctx context.Context) (models.Order, error) {
	return do[models.Order](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"payments", "community", "order"},
	})
}

func (c *Client) VerifyCreateCommunityOrder(ctx context.Context, v models.PaymentVerification) (models.VerificationResult, error) {
	return verify(ctx, c, call{
		method: http.MethodPost,
		path:   []string{"payments", "community", "verify"},
		body:   v,
	})
}

func (c *Client) CreateJoinCommunityOrder(ctx context.Context, communityID string) (models.Order, error) {
	return do[models.Order](ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", communityID, "join", "order"},
	})
}

func (c *Client) VerifyJoinCommunityPayment(ctx context.Context, v models.PaymentVerification) (models.VerificationResult, error) {
	return verify(ctx, c, call{
		method: http.MethodPost,
		path:   []string{"communities", v.CommunityID, "join", "verify"},
		body:   v,
	})
}

type verifiedData struct {
	Community *models.Community `json:"community"`
}

// verify decodes a verification answer. The envelope's success flag and
// message are the verdict, so a rejected payment is a result, not an error.
// Only transport failures and non-2xx statuses are errors.
func verify(ctx context.Context, c *Client, cl call) (models.VerificationResult, error) {
	b, err := c.send(ctx, cl)
	if err != nil {
		return models.VerificationResult{}, err
	}
	if len(b) == 0 {
		return models.VerificationResult{}, fmt.Errorf("empty verification response from %s", c.endpoint(cl.path, cl.query))
	}

	var env envelope[json.RawMessage]
	if err := json.Unmarshal(b, &env); err != nil {
		return models.VerificationResult{}, fmt.Errorf("error decoding verification response: %w", err)
	}

	res := models.VerificationResult{
		Success: env.Success != nil && *env.Success,
		Message: env.Message,
	}
	if !res.Success || len(env.Data) == 0 || string(env.Data) == "null" {
		return res, nil
	}

	// data is either {"community": {...}} or the community itself.
	var data verifiedData
	if err := json.Unmarshal(env.Data, &data); err == nil && data.Community != nil {
		res.Community = data.Community
		return res, nil
	}
	var community models.Community
	if err := json.Unmarshal(env.Data, &community); err == nil && community.ID != "" {
		res.Community = &community
	}
	return res, nil
}
