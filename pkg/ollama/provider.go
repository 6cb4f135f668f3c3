package ollama

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AtendeAI/atende-mvp/engine/domain"
)

// Provider hands out a single shared embedding client per process. The
// first Get constructs the client and runs a warm-up embed so model
// loading is paid once, at startup, instead of on the first user query.
type Provider struct {
	baseURL string
	model   string

	once   sync.Once
	client *EmbedClient
	dims   int
	err    error
}

// NewProvider configures a provider. No connection is made until Get.
func NewProvider(baseURL, model string) *Provider {
	return &Provider{baseURL: baseURL, model: model}
}

// Get returns the shared embed client, initializing it on first call.
// Initialization failures are sticky: every later Get reports the same
// error without retrying.
func (p *Provider) Get(ctx context.Context) (*EmbedClient, error) {
	p.once.Do(func() {
		client := NewEmbedClient(p.baseURL, p.model)

		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		vec, err := client.Embed(warmCtx, "warmup")
		if err != nil {
			p.err = fmt.Errorf("%w: %v", domain.ErrEmbedderInit, err)
			return
		}
		if len(vec) == 0 {
			p.err = fmt.Errorf("%w: model %q returned empty embedding", domain.ErrEmbedderInit, p.model)
			return
		}

		p.client = client
		p.dims = len(vec)
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

// Dims reports the embedding dimensionality observed during warm-up.
// Valid only after a successful Get.
func (p *Provider) Dims() int { return p.dims }
