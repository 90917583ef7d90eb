// Package payment drives course purchases, community creation and community
// joins through create order, checkout widget and server verification.
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"klub/pkg/checkout"
	"klub/pkg/events"
	"klub/pkg/models"
	"klub/pkg/notify"
	"klub/pkg/rest"
)

var (
	ErrPurchaseInProgress = errors.New("a purchase is already in progress")
	ErrMissingTarget      = errors.New("purchase target is not set")
	ErrUnknownFlow        = errors.New("unknown purchase flow")
	ErrVerificationFailed = errors.New("payment verification failed")
)

const publishTimeout = 10 * time.Second

type Flow int

const (
	CoursePurchase Flow = iota + 1
	CreateCommunity
	JoinCommunity
)

func (f Flow) String() string {
	switch f {
	case CoursePurchase:
		return "course"
	case CreateCommunity:
		return "create-community"
	case JoinCommunity:
		return "join-community"
	}
	return fmt.Sprintf("Flow(%d)", int(f))
}

type State int

const (
	Idle State = iota
	ScriptLoading
	OrderCreating
	WidgetOpen
	Verifying
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ScriptLoading:
		return "script-loading"
	case OrderCreating:
		return "order-creating"
	case WidgetOpen:
		return "widget-open"
	case Verifying:
		return "verifying"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Gateway interface {
	CreateCourseOrder(ctx context.Context, communityID, courseID string) (models.Order, error)
	VerifyCoursePayment(ctx context.Context, v models.PaymentVerification) (models.VerificationResult, error)
	CreateCommunityOrder(ctx context.Context) (models.Order, error)
	VerifyCreateCommunityOrder(ctx context.Context, v models.PaymentVerification) (models.VerificationResult, error)
	CreateJoinCommunityOrder(ctx context.Context, communityID string) (models.Order, error)
	VerifyJoinCommunityPayment(ctx context.Context, v models.PaymentVerification) (models.VerificationResult, error)
}

type ScriptLoader interface {
	Load(ctx context.Context) error
}

type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// RefreshFunc reloads data that depends on a successful purchase.
type RefreshFunc func(ctx context.Context, p Purchase, res models.VerificationResult) error

// Purchase names the flow and its target. CourseID is required for course
// purchases, CommunityID for course purchases and joins.
type Purchase struct {
	Flow        Flow
	CommunityID string
	CourseID    string
	Description string
}

func (p Purchase) validate() error {
	switch p.Flow {
	case CoursePurchase:
		if p.CommunityID == "" || p.CourseID == "" {
			return fmt.Errorf("%w: course purchase needs community and course ids", ErrMissingTarget)
		}
	case JoinCommunity:
		if p.CommunityID == "" {
			return fmt.Errorf("%w: join needs a community id", ErrMissingTarget)
		}
	case CreateCommunity:
	default:
		return ErrUnknownFlow
	}
	return nil
}

func (p Purchase) subject() string {
	if p.CourseID != "" {
		return p.CourseID
	}
	return p.CommunityID
}

func (p Purchase) description() string {
	if p.Description != "" {
		return p.Description
	}
	switch p.Flow {
	case CoursePurchase:
		return "Course purchase"
	case CreateCommunity:
		return "Community subscription"
	default:
		return "Community membership"
	}
}

type Options struct {
	Key        string
	Name       string
	ThemeColor string
	Profile    models.Profile

	NavigateDelay time.Duration
	Navigator     Navigator
	Refresh       RefreshFunc
	Publisher     events.Publisher
}

// Flags drive the success and failure modals.
type Flags struct {
	Processing  bool
	ShowSuccess bool
	ShowFailure bool
}

type Orchestrator struct {
	gateway  Gateway
	loader   ScriptLoader
	widgets  checkout.Factory
	notifier notify.Notifier
	opts     Options

	mu    sync.Mutex
	state State
	flags Flags
	busy  bool
}

func New(gateway Gateway, loader ScriptLoader, widgets checkout.Factory, notifier notify.Notifier, opts Options) *Orchestrator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Orchestrator{
		gateway:  gateway,
		loader:   loader,
		widgets:  widgets,
		notifier: notifier,
		opts:     opts,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Flags() Flags {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flags
}

// DismissModals clears the success and failure flags.
func (o *Orchestrator) DismissModals() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flags.ShowSuccess = false
	o.flags.ShowFailure = false
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	log.Debugf("[payment] state %s", s)
}

// StartPurchase runs one purchase and blocks until it succeeds, fails or the
// widget is dismissed. A done ctx while the widget is open counts as a
// dismiss. Only one purchase may run at a time.
func (o *Orchestrator) StartPurchase(ctx context.Context, p Purchase) (State, error) {
	if err := p.validate(); err != nil {
		o.notifier.ShowToast(notify.Toast{Type: notify.Error, Title: "Payment failed", Message: err.Error()})
		return o.State(), err
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return o.State(), ErrPurchaseInProgress
	}
	o.busy = true
	o.flags = Flags{Processing: true}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.flags.Processing = false
		o.mu.Unlock()
	}()

	log.Infof("[payment.StartPurchase] %s purchase for %s started", p.Flow, p.subject())

	o.setState(ScriptLoading)
	if err := o.loader.Load(ctx); err != nil {
		return o.fail(p, "Failed to load payment gateway", err, true)
	}

	o.setState(OrderCreating)
	order, err := o.createOrder(ctx, p)
	if err != nil {
		return o.fail(p, "Failed to create order", err, true)
	}

	if p.Flow == JoinCommunity && !order.RequiresPayment() {
		log.Infof("[payment.StartPurchase] community %s is free, joining without payment", p.CommunityID)
		return o.succeed(ctx, p, models.VerificationResult{Success: true}), nil
	}

	resp, dismissed, err := o.authorize(ctx, p, order)
	if err != nil {
		return o.fail(p, "Failed to open checkout", err, true)
	}
	if dismissed {
		return o.dismiss(p), nil
	}

	o.setState(Verifying)
	res, err := o.verify(ctx, p, verification(p, resp))
	if err != nil {
		return o.fail(p, "Payment verification failed", err, true)
	}
	if !res.Success {
		err := ErrVerificationFailed
		if res.Message != "" {
			err = fmt.Errorf("%w: %s", ErrVerificationFailed, res.Message)
		}
		return o.fail(p, "", err, false)
	}

	return o.succeed(ctx, p, res), nil
}

func (o *Orchestrator) createOrder(ctx context.Context, p Purchase) (models.Order, error) {
	switch p.Flow {
	case CoursePurchase:
		return o.gateway.CreateCourseOrder(ctx, p.CommunityID, p.CourseID)
	case CreateCommunity:
		return o.gateway.CreateCommunityOrder(ctx)
	default:
		return o.gateway.CreateJoinCommunityOrder(ctx, p.CommunityID)
	}
}

func (o *Orchestrator) verify(ctx context.Context, p Purchase, v models.PaymentVerification) (models.VerificationResult, error) {
	switch p.Flow {
	case CoursePurchase:
		return o.gateway.VerifyCoursePayment(ctx, v)
	case CreateCommunity:
		return o.gateway.VerifyCreateCommunityOrder(ctx, v)
	default:
		return o.gateway.VerifyJoinCommunityPayment(ctx, v)
	}
}

// verification copies the widget payload as is and adds the purchase target.
func verification(p Purchase, r models.PaymentResponse) models.PaymentVerification {
	v := models.PaymentVerification{
		PaymentID:      r.RazorpayPaymentID,
		OrderID:        r.RazorpayOrderID,
		SubscriptionID: r.RazorpaySubscriptionID,
		Signature:      r.RazorpaySignature,
	}
	switch p.Flow {
	case CoursePurchase:
		v.CourseID = p.CourseID
	case JoinCommunity:
		v.CommunityID = p.CommunityID
	}
	return v
}

// authorize opens the widget and waits for its first outcome.
func (o *Orchestrator) authorize(ctx context.Context, p Purchase, order models.Order) (models.PaymentResponse, bool, error) {
	paid := make(chan models.PaymentResponse, 1)
	dismissed := make(chan struct{}, 1)

	opts := checkout.Options{
		Key:         o.opts.Key,
		Name:        o.opts.Name,
		Description: p.description(),
		Prefill: checkout.Prefill{
			Name:    o.opts.Profile.Name,
			Email:   o.opts.Profile.Email,
			Contact: o.opts.Profile.Contact,
		},
		Theme: checkout.Theme{Color: o.opts.ThemeColor},
		Handler: func(r models.PaymentResponse) {
			select {
			case paid <- r:
			default:
			}
		},
		OnDismiss: func() {
			select {
			case dismissed <- struct{}{}:
			default:
			}
		},
	}
	if order.SubscriptionID != "" {
		opts.SubscriptionID = order.SubscriptionID
	} else {
		opts.OrderID = order.ID
		opts.Amount = order.Amount
		opts.Currency = order.Currency
	}

	w, err := o.widgets(opts)
	if err != nil {
		return models.PaymentResponse{}, false, err
	}

	o.setState(WidgetOpen)
	if err := w.Open(); err != nil {
		return models.PaymentResponse{}, false, err
	}

	select {
	case r := <-paid:
		return r, false, nil
	case <-dismissed:
		return models.PaymentResponse{}, true, nil
	case <-ctx.Done():
		log.Warnf("[payment.authorize] %s purchase abandoned: %v", p.Flow, ctx.Err())
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warnf("[payment.authorize] failed to close widget: %v", err)
			}
		}
		return models.PaymentResponse{}, true, nil
	}
}

func (o *Orchestrator) succeed(ctx context.Context, p Purchase, res models.VerificationResult) State {
	o.mu.Lock()
	o.state = Succeeded
	o.flags.ShowSuccess = true
	o.mu.Unlock()

	log.Infof("[payment] %s purchase for %s succeeded", p.Flow, p.subject())
	o.publish("payment.succeeded", p, res)

	if o.opts.Refresh != nil {
		if err := o.opts.Refresh(ctx, p, res); err != nil {
			log.Warnf("[payment] failed to refresh after %s purchase: %v", p.Flow, err)
		}
	}

	if o.opts.Navigator != nil {
		path := navigationPath(p, res)
		time.AfterFunc(o.opts.NavigateDelay, func() {
			o.opts.Navigator.Navigate(path)
		})
	}
	return Succeeded
}

func (o *Orchestrator) fail(p Purchase, title string, err error, toast bool) (State, error) {
	o.mu.Lock()
	o.state = Failed
	o.flags.ShowFailure = true
	o.mu.Unlock()

	log.Errorf("[payment] %s purchase for %s failed: %v", p.Flow, p.subject(), err)
	if toast {
		o.notifier.ShowToast(notify.Toast{Type: notify.Error, Title: title, Message: rest.ErrorMessage(err)})
	}
	o.publish("payment.failed", p, map[string]string{"error": err.Error()})

	return Failed, err
}

func (o *Orchestrator) dismiss(p Purchase) State {
	o.setState(Idle)
	log.Infof("[payment] %s purchase for %s dismissed", p.Flow, p.subject())
	o.publish("payment.dismissed", p, nil)
	return Idle
}

func (o *Orchestrator) publish(kind string, p Purchase, data any) {
	if o.opts.Publisher == nil {
		return
	}

	e := events.Event{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Subject:   p.subject(),
		Data: map[string]any{
			"flow":   p.Flow.String(),
			"result": data,
		},
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := o.opts.Publisher.Publish(ctx, e); err != nil {
			log.Errorf("[payment] failed to publish %s event: %v", kind, err)
		}
	}()
}

func navigationPath(p Purchase, res models.VerificationResult) string {
	switch p.Flow {
	case CoursePurchase:
		return "/communities/" + p.CommunityID + "/courses/" + p.CourseID
	case CreateCommunity:
		if res.Community != nil && res.Community.ID != "" {
			return "/communities/" + res.Community.ID
		}
		return "/communities"
	default:
		return "/communities/" + p.CommunityID
	}
}
