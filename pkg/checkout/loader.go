package checkout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultScriptURL = "https://checkout.razorpay.com/v1/checkout.js"

	defaultFetchTimeout = 30 * time.Second
	maxScriptSize       = 4 << 20
)

// Loader fetches the checkout script once per process. Concurrent calls share
// one fetch, and a failed fetch is retried by the next call.
type Loader struct {
	URL    string
	Client *http.Client

	mu     sync.RWMutex
	script []byte
	group  singleflight.Group
}

func NewLoader(url string) *Loader {
	if url == "" {
		url = DefaultScriptURL
	}
	return &Loader{
		URL:    url,
		Client: &http.Client{Timeout: defaultFetchTimeout},
	}
}

func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.script != nil
}

// Script returns the loaded script body, or nil if Load has not succeeded yet.
func (l *Loader) Script() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.script
}

func (l *Loader) Load(ctx context.Context) error {
	if l.Loaded() {
		return nil
	}

	ch := l.group.DoChan(l.URL, func() (any, error) {
		if l.Loaded() {
			return nil, nil
		}
		// One caller giving up must not fail the others sharing this fetch.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultFetchTimeout)
		defer cancel()

		b, err := l.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.script = b
		l.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	log.Debugf("[checkout.Loader] fetching script %s", l.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create script request: %w", err)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout script: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to load checkout script: unexpected status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout script: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("failed to load checkout script: empty body")
	}

	log.Infof("[checkout.Loader] checkout script loaded (%d bytes)", len(b))
	return b, nil
}
