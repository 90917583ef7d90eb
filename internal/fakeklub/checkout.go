package fakeklub

import (
	"context"

	log "github.com/sirupsen/logrus"

	"klub/pkg/checkout"
	"klub/pkg/models"
)

// ScriptLoader stands in for the gateway script; nothing needs loading.
type ScriptLoader struct{}

func (ScriptLoader) Load(context.Context) error { return nil }

// Checkout returns widgets that approve every payment at once, signed with
// the server's secret so verification succeeds.
func (s *Server) Checkout() checkout.Factory {
	return func(opts checkout.Options) (checkout.Widget, error) {
		return approvingWidget{opts: opts, secret: s.Secret}, nil
	}
}

type approvingWidget struct {
	opts   checkout.Options
	secret string
}

func (w approvingWidget) Open() error {
	resp := models.PaymentResponse{RazorpayPaymentID: newID("pay_")}
	if w.opts.SubscriptionID != "" {
		resp.RazorpaySubscriptionID = w.opts.SubscriptionID
		resp.RazorpaySignature = SignSubscription(w.secret, resp.RazorpayPaymentID, w.opts.SubscriptionID)
	} else {
		resp.RazorpayOrderID = w.opts.OrderID
		resp.RazorpaySignature = Sign(w.secret, w.opts.OrderID, resp.RazorpayPaymentID)
	}
	log.Debugf("[fakeklub] approving payment %s", resp.RazorpayPaymentID)

	if w.opts.Handler != nil {
		go w.opts.Handler(resp)
	}
	return nil
}
