package models

import (
	"reflect"
	"testing"
	"time"
)

func TestPost_Clone(t *testing.T) {
	orig := Post{
		ID:          "p1",
		WorkspaceID: "w1",
		Content:     "hello",
		Media:       []string{"https://cdn.example/1.png"},
		Likes:       []Like{{ID: "l1", PostID: "p1", UserID: "u1"}},
		Comments: []Comment{
			{ID: "c1", PostID: "p1", Content: "first", Likes: []Like{{ID: "l2", CommentID: "c1", UserID: "u2"}}},
		},
		CreatedAt: time.Date(2025, 1, 12, 10, 22, 13, 0, time.UTC),
	}

	clone := orig.Clone()
	if !reflect.DeepEqual(orig, clone) {
		t.Fatalf("want clone\n%+v\n\ngot clone\n%+v\n", orig, clone)
	}

	clone.Media[0] = "changed"
	clone.Likes[0].UserID = "changed"
	clone.Comments[0].Content = "changed"
	clone.Comments[0].Likes[0].UserID = "changed"

	if orig.Media[0] != "https://cdn.example/1.png" {
		t.Errorf("media aliased: %q", orig.Media[0])
	}
	if orig.Likes[0].UserID != "u1" {
		t.Errorf("post likes aliased: %q", orig.Likes[0].UserID)
	}
	if orig.Comments[0].Content != "first" {
		t.Errorf("comments aliased: %q", orig.Comments[0].Content)
	}
	if orig.Comments[0].Likes[0].UserID != "u2" {
		t.Errorf("comment likes aliased: %q", orig.Comments[0].Likes[0].UserID)
	}
}

func TestClonePosts_Nil(t *testing.T) {
	if got := ClonePosts(nil); got != nil {
		t.Errorf("want nil, got %+v", got)
	}
}

func TestOrder_RequiresPayment(t *testing.T) {
	free, paid := false, true
	tests := []struct {
		name  string
		order Order
		want  bool
	}{
		{"flag absent", Order{ID: "order_1"}, true},
		{"explicitly paid", Order{IsPaid: &paid}, true},
		{"explicitly free", Order{IsPaid: &free}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.RequiresPayment(); got != tt.want {
				t.Errorf("RequiresPayment() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestLikedBy(t *testing.T) {
	likes := []Like{{ID: "a", UserID: "u1"}, {ID: "b", UserID: "u2"}}
	if got := LikedBy(likes, "u2"); got != 1 {
		t.Errorf("want index 1, got %d", got)
	}
	if got := LikedBy(likes, "u3"); got != -1 {
		t.Errorf("want index -1, got %d", got)
	}
}
