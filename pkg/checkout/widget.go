// Package checkout loads the payment gateway checkout script and opens the
// checkout widget for a single order or subscription.
package checkout

import (
	"errors"

	"klub/pkg/models"
)

var ErrAlreadyOpen = errors.New("checkout widget is already open")

type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type Theme struct {
	Color string `json:"color,omitempty"`
}

// Options configures one widget instance. Exactly one of OrderID and
// SubscriptionID is expected to be set. Amount is in the gateway's minor units.
type Options struct {
	Key            string
	Amount         int64
	Currency       string
	OrderID        string
	SubscriptionID string
	Name           string
	Description    string
	Prefill        Prefill
	Theme          Theme

	Handler   func(models.PaymentResponse)
	OnDismiss func()
}

type Widget interface {
	Open() error
}

// Factory builds a widget from options. The script is guaranteed to be loaded
// before a factory is called.
type Factory func(opts Options) (Widget, error)

// gatewayOptions is the JSON form handed to the gateway script.
type gatewayOptions struct {
	Key            string  `json:"key"`
	Amount         int64   `json:"amount,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	OrderID        string  `json:"order_id,omitempty"`
	SubscriptionID string  `json:"subscription_id,omitempty"`
	Name           string  `json:"name,omitempty"`
	Description    string  `json:"description,omitempty"`
	Prefill        Prefill `json:"prefill"`
	Theme          Theme   `json:"theme"`
}

func (o Options) gateway() gatewayOptions {
	return gatewayOptions{
		Key:            o.Key,
		Amount:         o.Amount,
		Currency:       o.Currency,
		OrderID:        o.OrderID,
		SubscriptionID: o.SubscriptionID,
		Name:           o.Name,
		Description:    o.Description,
		Prefill:        o.Prefill,
		Theme:          o.Theme,
	}
}
