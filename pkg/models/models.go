package models

import (
	"time"
)

type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Post struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Author      Author    `json:"author"`
	Content     string    `json:"content"`
	Media       []string  `json:"media,omitempty"`
	Likes       []Like    `json:"likes"`
	Comments    []Comment `json:"comments"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Likes     []Like    `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Like belongs to either a post or a comment, never both.
type Like struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId,omitempty"`
	CommentID string    `json:"commentId,omitempty"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CommunityID string `json:"communityId"`
	IsPrivate   bool   `json:"isPrivate"`
}

type Community struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsPaid   bool   `json:"isPaid"`
	Price    int64  `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`
	PlanID   string `json:"planId,omitempty"`
}

// Profile describes the signed in user.
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact,omitempty"`
}

type PostInput struct {
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
}

type WorkspaceInput struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
}

// Order is the gateway order or subscription descriptor returned by the
// "create" payment endpoints. Amount is in the gateway's minor units.
type Order struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	PlanID         string `json:"planId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	IsPaid         *bool  `json:"isPaid,omitempty"`
}

// RequiresPayment reports false only when the server explicitly marked the
// target as free.
func (o Order) RequiresPayment() bool {
	return o.IsPaid == nil || *o.IsPaid
}

// PaymentResponse is the payload the checkout widget hands to its success handler.
type PaymentResponse struct {
	RazorpayPaymentID      string `json:"razorpay_payment_id"`
	RazorpayOrderID        string `json:"razorpay_order_id,omitempty"`
	RazorpaySubscriptionID string `json:"razorpay_subscription_id,omitempty"`
	RazorpaySignature      string `json:"razorpay_signature"`
}

type PaymentVerification struct {
	PaymentID      string `json:"razorpayPaymentId"`
	OrderID        string `json:"razorpayOrderId,omitempty"`
	SubscriptionID string `json:"razorpaySubscriptionId,omitempty"`
	Signature      string `json:"razorpaySignature"`
	CourseID       string `json:"courseId,omitempty"`
	CommunityID    string `json:"communityId,omitempty"`
}

type VerificationResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Community *Community `json:"community,omitempty"`
}

type Pagination struct {
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
}

type PostsPage struct {
	Posts      []Post     `json:"posts"`
	Pagination Pagination `json:"pagination"`
}
