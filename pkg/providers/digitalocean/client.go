// Package digitalocean implements the engine adapters on the
// DigitalOcean API: droplets for compute instances, domain records for DNS
// record sets, load balancers for proxy route sets, and managed
// Let's Encrypt certificates.
package digitalocean

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/godo"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/acederberg/captura-deploy/pkg/engine"
	"github.com/acederberg/captura-deploy/pkg/providers"
)

// Config holds the provider credentials and polling behavior.
type Config struct {
	// Token is the DigitalOcean API token.
	Token string `validate:"required"`

	// PollInterval is how often provisioning waits re-check remote status.
	PollInterval time.Duration

	// ProvisionTimeout bounds how long a create may wait for the remote
	// object to become active.
	ProvisionTimeout time.Duration
}

// Client wraps the godo client shared by all adapters of this provider.
type Client struct {
	api              *godo.Client
	pollInterval     time.Duration
	provisionTimeout time.Duration
}

// NewClient validates the config and builds the API client.
func NewClient(cfg Config) (*Client, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("digitalocean config invalid: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = 5 * time.Minute
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &Client{
		api:              godo.NewClient(httpClient),
		pollInterval:     cfg.PollInterval,
		provisionTimeout: cfg.ProvisionTimeout,
	}, nil
}

// RegisterAdapters binds this provider's adapters for every resource type.
func (c *Client) RegisterAdapters(reg *providers.Registry) {
	reg.Register(engine.TypeComputeInstance, &ComputeAdapter{client: c})
	reg.Register(engine.TypeDNSRecordSet, &RecordSetAdapter{client: c})
	reg.Register(engine.TypeProxyRouteSet, &RouteSetAdapter{client: c})
	reg.Register(engine.TypeCertificate, &CertificateAdapter{client: c})
}

// waitFor polls cond until it reports done, the timeout elapses, or the
// context is canceled.
func (c *Client) waitFor(ctx context.Context, what string, cond func(context.Context) (bool, error)) error {
	deadline := time.NewTimer(c.provisionTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return engine.NewPermanentError("canceled while waiting for "+what, ctx.Err())
		case <-deadline.C:
			return engine.NewTransientError("timed out waiting for "+what, nil)
		case <-tick.C:
		}
	}
}
