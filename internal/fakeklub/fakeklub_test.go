package fakeklub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"klub/pkg/checkout"
	"klub/pkg/feed"
	"klub/pkg/models"
	"klub/pkg/notify"
	"klub/pkg/payment"
	"klub/pkg/rest"
)

const (
	testToken  = "secret-token"
	testSecret = "gateway-secret"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

var testUser = models.Author{ID: "u1", Name: "Some Dude"}

// newTestServer seeds community c1 with two workspaces and three posts in
// General, plus a paid community c2, a free community c3 and course_1.
func newTestServer(t *testing.T) (*Server, *rest.Client) {
	t.Helper()

	srv := New(testToken, testSecret, testUser)
	srv.Store.AddCommunity(models.Community{ID: "c1", Name: "Gophers"})
	srv.Store.AddCommunity(models.Community{ID: "c2", Name: "Paid", IsPaid: true, Price: 19900, Currency: "INR", PlanID: "plan_c2"})
	srv.Store.AddCommunity(models.Community{ID: "c3", Name: "Free"})
	srv.Store.AddCourse(Course{ID: "course_1", CommunityID: "c1", Price: 49900})

	general, err := srv.Store.CreateWorkspace("c1", models.WorkspaceInput{Name: "General"})
	if err != nil {
		t.Fatalf("failed to create workspace: %v", err)
	}
	if _, err := srv.Store.CreateWorkspace("c1", models.WorkspaceInput{Name: "Announcements"}); err != nil {
		t.Fatalf("failed to create workspace: %v", err)
	}

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Minute)
		srv.Store.now = func() time.Time { return at }
		if _, err := srv.Store.CreatePost("c1", general.ID, models.Author{ID: "u2", Name: "Other"}, models.PostInput{Content: content}); err != nil {
			t.Fatalf("failed to create post: %v", err)
		}
	}
	srv.Store.now = time.Now

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	client, err := rest.New(ts.URL, testToken, 2*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return srv, client
}

type toastRecorder struct {
	mu     sync.Mutex
	toasts []notify.Toast
}

func (r *toastRecorder) ShowToast(t notify.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *toastRecorder) all() []notify.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Toast(nil), r.toasts...)
}

func TestStore_PostsPagination(t *testing.T) {
	srv, _ := newTestServer(t)

	posts, numPages, err := srv.Store.Posts("c1", "", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if numPages != 2 {
		t.Errorf("want 2 pages, got %d", numPages)
	}
	if len(posts) != 2 || posts[0].Content != "third" {
		t.Errorf("want newest first, got %+v", posts)
	}

	posts, _, _ = srv.Store.Posts("c1", "", 3, 2)
	if len(posts) != 0 {
		t.Errorf("want empty page past the end, got %d posts", len(posts))
	}

	if _, _, err := srv.Store.Posts("nope", "", 1, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("want %v, got %v", ErrNotFound, err)
	}
}

func TestServer_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client, err := rest.New(ts.URL, "wrong", time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	_, err = client.ListMine(context.Background(), "c1")

	var apiErr *rest.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %v", err)
	}
}

func TestServer_FeedRoundTrip(t *testing.T) {
	srv, client := newTestServer(t)
	rec := &toastRecorder{}
	ctx := context.Background()

	s := feed.New(client, client, rec, feed.Options{
		CommunityID: "c1",
		User:        models.Profile{ID: testUser.ID, Name: testUser.Name},
		PageLimit:   2,
	})
	if err := s.LoadWorkspaces(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SwitchWorkspace(ctx, "# General"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(s.Posts()); got != 3 {
		t.Fatalf("want all 3 posts across pages, got %d", got)
	}

	if err := s.CreatePost(ctx, "hello gophers"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	posts := s.Posts()
	if len(posts) != 4 || posts[0].Content != "hello gophers" || posts[0].Author.ID != "u1" {
		t.Fatalf("want server created post first, got %+v", posts)
	}
	postID := posts[0].ID

	if err := s.LikePost(ctx, postID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CreateComment(ctx, postID, "first!"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Wait()

	local := s.Posts()[0]
	if len(local.Likes) != 1 || local.Likes[0].UserID != "u1" {
		t.Errorf("want one like by u1, got %+v", local.Likes)
	}
	if len(local.Comments) != 1 || local.Comments[0].ID == "" || local.Comments[0].ID[:5] == "temp-" {
		t.Errorf("want server comment id, got %+v", local.Comments)
	}

	// Local state matches a fresh load.
	if err := s.LoadByWorkspace(ctx, local.WorkspaceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh := s.Posts()[0]; !reflect.DeepEqual(fresh.Likes, local.Likes) || !reflect.DeepEqual(fresh.Comments, local.Comments) {
		t.Errorf("want local state confirmed by server\nlocal %+v\nfresh %+v", local, fresh)
	}

	if len(srv.Requests(RouteLikePost)) != 1 {
		t.Errorf("want 1 like request, got %d", len(srv.Requests(RouteLikePost)))
	}
	if toasts := rec.all(); len(toasts) != 0 {
		t.Errorf("want no toasts, got %+v", toasts)
	}
}

func TestServer_FailNextRollsBack(t *testing.T) {
	srv, client := newTestServer(t)
	rec := &toastRecorder{}
	ctx := context.Background()

	s := feed.New(client, client, rec, feed.Options{CommunityID: "c1", User: models.Profile{ID: "u1"}})
	if err := s.LoadAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := s.Posts()

	srv.FailNext(RouteUpdatePost, http.StatusInternalServerError, "Database unavailable")
	srv.FailNext(RouteDeletePost, http.StatusForbidden, "Not your post")
	if err := s.UpdatePost(ctx, before[0].ID, "edited"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Wait()
	if err := s.DeletePost(ctx, before[1].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Wait()

	if got := s.Posts(); !reflect.DeepEqual(got, before) {
		t.Errorf("want collection restored, got %+v", got)
	}

	toasts := rec.all()
	if len(toasts) != 2 || toasts[0].Message != "Database unavailable" || toasts[1].Message != "Not your post" {
		t.Errorf("want server messages in toasts, got %+v", toasts)
	}

	// The injected failures are consumed.
	if err := s.UpdatePost(ctx, before[0].ID, "edited"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Wait()
	posts, _, err := srv.Store.Posts("c1", "", 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if posts[0].Content != "edited" {
		t.Errorf("want update stored, got %q", posts[0].Content)
	}
}

// countingFactory returns approving widgets that sign with secret and counts
// how many were created.
func countingFactory(secret string, opened *int) checkout.Factory {
	return func(opts checkout.Options) (checkout.Widget, error) {
		*opened++
		return approvingWidget{opts: opts, secret: secret}, nil
	}
}

func TestServer_Payments(t *testing.T) {
	tests := []struct {
		name       string
		purchase   payment.Purchase
		secret     string
		wantState  payment.State
		wantErr    error
		wantOpened int
		wantToasts int
		check      func(t *testing.T, s *Store)
	}{
		{
			name:       "course purchase",
			purchase:   payment.Purchase{Flow: payment.CoursePurchase, CommunityID: "c1", CourseID: "course_1"},
			secret:     testSecret,
			wantState:  payment.Succeeded,
			wantOpened: 1,
			check: func(t *testing.T, s *Store) {
				if !s.Purchased("course_1") {
					t.Error("want course purchased")
				}
			},
		},
		{
			name:       "course purchase with forged signature",
			purchase:   payment.Purchase{Flow: payment.CoursePurchase, CommunityID: "c1", CourseID: "course_1"},
			secret:     "forged",
			wantState:  payment.Failed,
			wantErr:    payment.ErrVerificationFailed,
			wantOpened: 1,
			check: func(t *testing.T, s *Store) {
				if s.Purchased("course_1") {
					t.Error("want course not purchased")
				}
			},
		},
		{
			name:       "join paid community",
			purchase:   payment.Purchase{Flow: payment.JoinCommunity, CommunityID: "c2"},
			secret:     testSecret,
			wantState:  payment.Succeeded,
			wantOpened: 1,
			check: func(t *testing.T, s *Store) {
				if !s.Member("c2") {
					t.Error("want membership in c2")
				}
			},
		},
		{
			name:       "join free community",
			purchase:   payment.Purchase{Flow: payment.JoinCommunity, CommunityID: "c3"},
			secret:     testSecret,
			wantState:  payment.Succeeded,
			wantOpened: 0,
			check: func(t *testing.T, s *Store) {
				if !s.Member("c3") {
					t.Error("want membership in c3")
				}
			},
		},
		{
			name:       "create community",
			purchase:   payment.Purchase{Flow: payment.CreateCommunity},
			secret:     testSecret,
			wantState:  payment.Succeeded,
			wantOpened: 1,
		},
		{
			name:       "unknown course",
			purchase:   payment.Purchase{Flow: payment.CoursePurchase, CommunityID: "c1", CourseID: "nope"},
			secret:     testSecret,
			wantState:  payment.Failed,
			wantErr:    rest.ErrNotFound,
			wantToasts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, client := newTestServer(t)
			opened := 0
			rec := &toastRecorder{}
			o := payment.New(client, ScriptLoader{}, countingFactory(tt.secret, &opened), rec, payment.Options{Key: "rzp_test"})

			state, err := o.StartPurchase(context.Background(), tt.purchase)
			if state != tt.wantState {
				t.Errorf("want state %v, got %v", tt.wantState, state)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("want error %v, got %v", tt.wantErr, err)
			}
			if opened != tt.wantOpened {
				t.Errorf("want widget opened %d times, got %d", tt.wantOpened, opened)
			}
			if n := len(rec.all()); n != tt.wantToasts {
				t.Errorf("want %d toasts, got %d", tt.wantToasts, n)
			}
			if tt.check != nil {
				tt.check(t, srv.Store)
			}
		})
	}
}

func TestStore_VerifyTwice(t *testing.T) {
	srv, _ := newTestServer(t)

	o, err := srv.Store.CreateCourseOrder("c1", "course_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := models.PaymentVerification{
		PaymentID: "pay_1",
		OrderID:   o.ID,
		Signature: Sign(testSecret, o.ID, "pay_1"),
		CourseID:  "course_1",
	}

	res, err := srv.Store.Verify(testSecret, v)
	if err != nil || !res.Success {
		t.Fatalf("want verified, got %+v, %v", res, err)
	}
	if _, err := srv.Store.Verify(testSecret, v); !errors.Is(err, ErrConflict) {
		t.Errorf("want %v on replay, got %v", ErrConflict, err)
	}
	if _, err := srv.Store.CreateCourseOrder("c1", "course_1"); !errors.Is(err, ErrConflict) {
		t.Errorf("want %v for purchased course, got %v", ErrConflict, err)
	}
}

func TestServer_CheckoutApproves(t *testing.T) {
	srv, client := newTestServer(t)
	rec := &toastRecorder{}
	o := payment.New(client, ScriptLoader{}, srv.Checkout(), rec, payment.Options{Key: "rzp_test"})

	state, err := o.StartPurchase(context.Background(), payment.Purchase{Flow: payment.JoinCommunity, CommunityID: "c2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != payment.Succeeded {
		t.Errorf("want %v, got %v", payment.Succeeded, state)
	}
	if !srv.Store.Member("c2") {
		t.Error("want c2 joined")
	}
}
