package rest

import (
	"context"
	"errors"
	"net/http"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/h2non/gock"
	log "github.com/sirupsen/logrus"

	"klub/pkg/models"
)

const testAPIURL = "http://api.klub.test"

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(testAPIURL+"/v1", "secret-token", time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	tests := []string{"", "not a url", "/relative/path", "api.klub.test"}
	for _, u := range tests {
		if _, err := New(u, "", 0); err == nil {
			t.Errorf("New(%q) want error, got nil", u)
		}
	}
}

func TestClient_ListByWorkspace(t *testing.T) {
	defer gock.Off()

	wantPosts := []models.Post{
		{
			ID:          "p1",
			WorkspaceID: "w1",
			Author:      models.Author{ID: "u1", Name: "Some Dude"},
			Content:     "Welcome to the klub",
			Likes:       []models.Like{{ID: "l1", PostID: "p1", UserID: "u2", CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}},
			Comments:    []models.Comment{},
			CreatedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	gock.New(testAPIURL).
		Get("/v1/communities/c1/workspaces/w1/posts").
		MatchParam("page", "1").
		MatchParam("limit", "100").
		MatchHeader("Authorization", "^Bearer secret-token$").
		MatchHeader("X-Request-Id", "^[0-9a-f-]{36}$").
		Reply(http.StatusOK).
		JSON(map[string]any{
			"success": true,
			"data": models.PostsPage{
				Posts:      wantPosts,
				Pagination: models.Pagination{TotalPages: 1, CurrentPage: 1, Limit: 100},
			},
		})

	c := newTestClient(t)
	got, err := c.ListByWorkspace(context.Background(), "c1", "w1", 0, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(wantPosts, got.Posts) {
		t.Errorf("want posts\n%+v\n\ngot posts\n%+v\n", wantPosts, got.Posts)
	}
	if got.Pagination.TotalPages != 1 {
		t.Errorf("want total pages 1, got %d", got.Pagination.TotalPages)
	}
	if !gock.IsDone() {
		t.Error("want all mocked requests to be consumed")
	}
}

func TestClient_CreateComment(t *testing.T) {
	defer gock.Off()

	gock.New(testAPIURL).
		Post("/v1/communities/c1/posts/p1/comments").
		MatchType("json").
		JSON(map[string]string{"content": "hello"}).
		Reply(http.StatusCreated).
		JSON(map[string]any{
			"success": true,
			"data": map[string]any{
				"id":      "c_abc123",
				"postId":  "p1",
				"content": "hello",
				"author":  map[string]string{"id": "u1", "name": "Some Dude"},
			},
		})

	c := newTestClient(t)
	got, err := c.CreateComment(context.Background(), "c1", "p1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c_abc123" {
		t.Errorf("want comment id %q, got %q", "c_abc123", got.ID)
	}
	if got.Content != "hello" {
		t.Errorf("want content %q, got %q", "hello", got.Content)
	}
}

func TestClient_DeletePostNotFound(t *testing.T) {
	defer gock.Off()

	gock.New(testAPIURL).
		Delete("/v1/communities/c1/posts/missing").
		Reply(http.StatusNotFound).
		JSON(map[string]any{"success": false, "message": "Post not found"})

	c := newTestClient(t)
	err := c.DeletePost(context.Background(), "c1", "missing")
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if got := ErrorMessage(err); got != "Post not found" {
		t.Errorf("want message %q, got %q", "Post not found", got)
	}
}

func TestClient_SuccessFalseEnvelope(t *testing.T) {
	defer gock.Off()

	gock.New(testAPIURL).
		Post("/v1/communities/c1/workspaces").
		Reply(http.StatusOK).
		JSON(map[string]any{"success": false, "message": "Workspace limit reached"})

	c := newTestClient(t)
	_, err := c.CreateWorkspace(context.Background(), "c1", models.WorkspaceInput{Name: "General"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if apiErr.Message != "Workspace limit reached" {
		t.Errorf("want message %q, got %q", "Workspace limit reached", apiErr.Message)
	}
}

func TestClient_ServerErrorWithoutEnvelope(t *testing.T) {
	defer gock.Off()

	gock.New(testAPIURL).
		Get("/v1/communities/c1/workspaces/mine").
		Reply(http.StatusBadGateway).
		BodyString("<html>bad gateway</html>")

	c := newTestClient(t)
	_, err := c.ListMine(context.Background(), "c1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("want status %d, got %d", http.StatusBadGateway, apiErr.StatusCode)
	}
	if got := ErrorMessage(err); got != msgGeneric {
		t.Errorf("want message %q, got %q", msgGeneric, got)
	}
}

func TestClient_VerifyCoursePayment(t *testing.T) {
	v := models.PaymentVerification{
		PaymentID: "pay_1",
		OrderID:   "order_1",
		Signature: "sig_1",
		CourseID:  "course_1",
	}

	tests := []struct {
		name        string
		status      int
		reply       map[string]any
		wantSuccess bool
		wantMessage string
		wantStatus  int
	}{
		{
			name:        "verified",
			status:      http.StatusOK,
			reply:       map[string]any{"success": true, "message": "Course purchased", "data": map[string]any{"courseId": "course_1"}},
			wantSuccess: true,
			wantMessage: "Course purchased",
		},
		{
			name:        "verified without data",
			status:      http.StatusOK,
			reply:       map[string]any{"success": true},
			wantSuccess: true,
		},
		{
			name:        "rejected",
			status:      http.StatusOK,
			reply:       map[string]any{"success": false, "message": "Invalid signature"},
			wantMessage: "Invalid signature",
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			reply:      map[string]any{"success": false, "message": "Database unavailable"},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()

			gock.New(testAPIURL).
				Post("/v1/payments/course/verify").
				JSON(map[string]string{
					"razorpayPaymentId": "pay_1",
					"razorpayOrderId":   "order_1",
					"razorpaySignature": "sig_1",
					"courseId":          "course_1",
				}).
				Reply(tt.status).
				JSON(tt.reply)

			c := newTestClient(t)
			got, err := c.VerifyCoursePayment(context.Background(), v)

			if tt.wantStatus != 0 {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.wantStatus {
					t.Fatalf("want *APIError with status %d, got %v", tt.wantStatus, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Success != tt.wantSuccess {
				t.Errorf("want success %v, got %v", tt.wantSuccess, got.Success)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("want message %q, got %q", tt.wantMessage, got.Message)
			}
		})
	}
}

func TestClient_VerifyJoinCommunityPayment(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"wrapped community", map[string]any{"community": map[string]any{"id": "c2", "name": "Paid"}}},
		{"bare community", map[string]any{"id": "c2", "name": "Paid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()

			gock.New(testAPIURL).
				Post("/v1/communities/c2/join/verify").
				Reply(http.StatusOK).
				JSON(map[string]any{"success": true, "message": "Joined community", "data": tt.data})

			c := newTestClient(t)
			got, err := c.VerifyJoinCommunityPayment(context.Background(), models.PaymentVerification{
				PaymentID:      "pay_1",
				SubscriptionID: "sub_1",
				Signature:      "sig_1",
				CommunityID:    "c2",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Success {
				t.Error("want verified payment")
			}
			if got.Community == nil || got.Community.ID != "c2" {
				t.Errorf("want community c2, got %+v", got.Community)
			}
		})
	}
}

func TestClient_CreateJoinCommunityOrderFree(t *testing.T) {
	defer gock.Off()

	gock.New(testAPIURL).
		Post("/v1/communities/c1/join/order").
		Reply(http.StatusOK).
		JSON(map[string]any{"success": true, "data": map[string]any{"isPaid": false}})

	c := newTestClient(t)
	got, err := c.CreateJoinCommunityOrder(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RequiresPayment() {
		t.Error("want free community order")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"api error with message", &APIError{StatusCode: 400, Message: "Content is required"}, "Content is required"},
		{"api error without message", &APIError{StatusCode: 500}, msgGeneric},
		{"deadline", context.DeadlineExceeded, msgTimeout},
		{"other", errors.New("boom"), msgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.err); got != tt.want {
				t.Errorf("ErrorMessage(%v) = %q; want %q", tt.err, got, tt.want)
			}
		})
	}
}
