package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"klub/internal/reqid"
	"klub/pkg/models"
)

const shutdownTimeout = 5 * time.Second

// Launcher presents the checkout page URL to the user, e.g. by opening a browser.
type Launcher func(url string) error

// LogLauncher only logs the URL.
func LogLauncher(url string) error {
	log.Infof("[checkout] complete the payment at %s", url)
	return nil
}

// ScriptSource provides the loaded checkout script.
type ScriptSource interface {
	Script() []byte
}

// HostedFactory returns a Factory producing Hosted widgets that embed the
// script from src and announce themselves through launch.
func HostedFactory(src ScriptSource, launch Launcher) Factory {
	return func(opts Options) (Widget, error) {
		return NewHosted(opts, src.Script(), launch), nil
	}
}

// Hosted serves the checkout page on a loopback address and relays the
// gateway's success or dismiss outcome back to the options' handlers.
// Only the first outcome is delivered.
type Hosted struct {
	opts   Options
	script []byte
	launch Launcher

	r *mux.Router

	mu        sync.Mutex
	srv       *http.Server
	url       string
	delivered bool
}

func NewHosted(opts Options, script []byte, launch Launcher) *Hosted {
	if launch == nil {
		launch = LogLauncher
	}
	h := Hosted{
		opts:   opts,
		script: script,
		launch: launch,
		r:      mux.NewRouter(),
	}
	h.endpoints()

	return &h
}

func (h *Hosted) Router() *mux.Router {
	return h.r
}

func (h *Hosted) endpoints() {
	h.r.Use(reqid.Middleware)
	h.r.Use(loggingMiddleware)

	h.r.HandleFunc("/", h.pageHandler).Methods(http.MethodGet)
	h.r.HandleFunc("/checkout.js", h.scriptHandler).Methods(http.MethodGet)
	h.r.HandleFunc("/callback", h.callbackHandler).Methods(http.MethodPost)
	h.r.HandleFunc("/dismiss", h.dismissHandler).Methods(http.MethodPost)
}

// URL is the page address once Open has succeeded.
func (h *Hosted) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

func (h *Hosted) Open() error {
	h.mu.Lock()
	if h.srv != nil {
		h.mu.Unlock()
		return ErrAlreadyOpen
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("failed to listen for checkout callbacks: %w", err)
	}
	h.srv = &http.Server{Handler: h.r, ReadHeaderTimeout: 10 * time.Second}
	h.url = "http://" + ln.Addr().String() + "/"
	srv, url := h.srv, h.url
	h.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[checkout] callback server stopped: %v", err)
		}
	}()
	log.Debugf("[checkout] widget for order %q listening on %s", h.opts.OrderID+h.opts.SubscriptionID, url)

	if err := h.launch(url); err != nil {
		h.Close()
		return fmt.Errorf("failed to launch checkout page: %w", err)
	}
	return nil
}

// Close stops the callback server without delivering any outcome.
func (h *Hosted) Close() error {
	h.mu.Lock()
	h.delivered = true
	srv := h.srv
	h.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// deliver runs fn unless an outcome has already been delivered, then stops
// the server.
func (h *Hosted) deliver(fn func()) bool {
	h.mu.Lock()
	if h.delivered {
		h.mu.Unlock()
		return false
	}
	h.delivered = true
	srv := h.srv
	h.mu.Unlock()

	go func() {
		if fn != nil {
			fn()
		}
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warnf("[checkout] failed to shut down callback server: %v", err)
			}
		}
	}()
	return true
}

func (h *Hosted) pageHandler(w http.ResponseWriter, r *http.Request) {
	sID := reqid.ShortFrom(r.Context())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, h.opts.gateway()); err != nil {
		log.Errorf("[pageHandler][%s] failed to render checkout page: %v", sID, err)
	}
}

func (h *Hosted) scriptHandler(w http.ResponseWriter, r *http.Request) {
	if len(h.script) == 0 {
		http.Error(w, "checkout script not loaded", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Write(h.script)
}

func (h *Hosted) callbackHandler(w http.ResponseWriter, r *http.Request) {
	sID := reqid.ShortFrom(r.Context())

	var resp models.PaymentResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		log.Errorf("[callbackHandler][%s] failed to decode payment response: %v", sID, err)
		return
	}
	defer r.Body.Close()

	if resp.RazorpayPaymentID == "" {
		http.Error(w, "missing payment id", http.StatusBadRequest)
		return
	}

	handler := h.opts.Handler
	if !h.deliver(func() {
		if handler != nil {
			handler(resp)
		}
	}) {
		http.Error(w, "checkout already completed", http.StatusConflict)
		log.Warnf("[callbackHandler][%s] duplicate payment callback ignored", sID)
		return
	}

	log.Debugf("[callbackHandler][%s] payment %s received", sID, resp.RazorpayPaymentID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hosted) dismissHandler(w http.ResponseWriter, r *http.Request) {
	if !h.deliver(h.opts.OnDismiss) {
		http.Error(w, "checkout already completed", http.StatusConflict)
		return
	}

	log.Debugf("[dismissHandler][%s] checkout dismissed", reqid.ShortFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

var pageTmpl = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<script src="/checkout.js"></script>
</head>
<body>
<script>
var options = {{.}};
function post(path, body) {
  return fetch(path, {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body || {})});
}
options.handler = function (resp) {
  post("/callback", resp).then(function () { document.body.textContent = "Payment received, you can close this tab."; });
};
options.modal = {ondismiss: function () {
  post("/dismiss").then(function () { document.body.textContent = "Checkout cancelled."; });
}};
new Razorpay(options).open();
</script>
</body>
</html>
`))
