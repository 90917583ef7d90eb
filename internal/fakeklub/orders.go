package fakeklub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"klub/pkg/models"
)

const (
	// CommunityPlanPrice is the monthly price of creating a community, in paise.
	CommunityPlanPrice = 99900
	communityPlanID    = "plan_community_monthly"
	currency           = "INR"
)

var ErrBadSignature = errors.New("payment signature mismatch")

// Sign computes the gateway signature of an order payment.
func Sign(secret, orderID, paymentID string) string {
	return hmacHex(secret, orderID+"|"+paymentID)
}

// SignSubscription computes the gateway signature of a subscription payment.
func SignSubscription(secret, paymentID, subscriptionID string) string {
	return hmacHex(secret, paymentID+"|"+subscriptionID)
}

func hmacHex(secret, msg string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(msg))
	return hex.EncodeToString(m.Sum(nil))
}

func (s *Store) CreateCourseOrder(communityID, courseID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.courses[courseID]
	if !ok || c.CommunityID != communityID {
		return models.Order{}, ErrNotFound
	}
	if s.purchases[courseID] {
		return models.Order{}, ErrConflict
	}

	o := &order{
		Order:       models.Order{ID: newID("order_"), Amount: c.Price, Currency: currency},
		kind:        courseOrder,
		communityID: communityID,
		courseID:    courseID,
	}
	s.orders[o.ID] = o
	return o.Order, nil
}

func (s *Store) CreateCommunityOrder() models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := &order{
		Order: models.Order{
			ID:             newID("order_"),
			Amount:         CommunityPlanPrice,
			Currency:       currency,
			PlanID:         communityPlanID,
			SubscriptionID: newID("sub_"),
		},
		kind: communityOrder,
	}
	s.orders[o.SubscriptionID] = o
	return o.Order
}

// CreateJoinOrder returns an order with IsPaid false for free communities and
// joins them right away.
func (s *Store) CreateJoinOrder(communityID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.communities[communityID]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	if s.members[communityID] {
		return models.Order{}, ErrConflict
	}

	isPaid := c.IsPaid
	if !isPaid {
		s.members[communityID] = true
		return models.Order{IsPaid: &isPaid}, nil
	}

	o := &order{
		Order: models.Order{
			ID:             newID("order_"),
			Amount:         c.Price,
			Currency:       c.Currency,
			PlanID:         c.PlanID,
			SubscriptionID: newID("sub_"),
			IsPaid:         &isPaid,
		},
		kind:        joinOrder,
		communityID: communityID,
	}
	s.orders[o.SubscriptionID] = o
	return o.Order, nil
}

// Verify checks the signature of v against the pending order and completes
// it. A mismatch is reported in the result, not as an error.
func (s *Store) Verify(secret string, v models.PaymentVerification) (models.VerificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		o    *order
		want string
	)
	switch {
	case v.SubscriptionID != "":
		o = s.orders[v.SubscriptionID]
		want = SignSubscription(secret, v.PaymentID, v.SubscriptionID)
	case v.OrderID != "":
		o = s.orders[v.OrderID]
		want = Sign(secret, v.OrderID, v.PaymentID)
	}
	if o == nil {
		return models.VerificationResult{}, ErrNotFound
	}
	if o.verified {
		return models.VerificationResult{}, ErrConflict
	}

	if !hmac.Equal([]byte(want), []byte(v.Signature)) {
		return models.VerificationResult{Success: false, Message: ErrBadSignature.Error()}, nil
	}

	switch o.kind {
	case courseOrder:
		if v.CourseID != o.courseID {
			return models.VerificationResult{Success: false, Message: fmt.Sprintf("order was not issued for course %s", v.CourseID)}, nil
		}
		s.purchases[o.courseID] = true
		o.verified = true
		return models.VerificationResult{Success: true, Message: "Course purchased"}, nil

	case joinOrder:
		if v.CommunityID != o.communityID {
			return models.VerificationResult{Success: false, Message: fmt.Sprintf("order was not issued for community %s", v.CommunityID)}, nil
		}
		s.members[o.communityID] = true
		o.verified = true
		c := s.communities[o.communityID]
		return models.VerificationResult{Success: true, Message: "Joined community", Community: &c}, nil

	default:
		c := models.Community{ID: newID("c_"), Name: "New community", IsPaid: false}
		s.communities[c.ID] = c
		s.members[c.ID] = true
		o.verified = true
		return models.VerificationResult{Success: true, Message: "Community created", Community: &c}, nil
	}
}
