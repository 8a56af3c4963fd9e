package digitalocean

import (
	"context"

	"github.com/digitalocean/godo"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// CertificateAdapter manages Let's Encrypt certificates issued by the
// platform.
//
// Inputs: domains (required).
// Outputs: id, state, not_after, sha1_fingerprint.
//
// Issued certificates are immutable; covering a different name set means
// issuing a new certificate.
type CertificateAdapter struct {
	client *Client
}

func (a *CertificateAdapter) Create(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	domains, err := stringListInput(req.Inputs, "domains")
	if err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		return nil, engine.NewPermanentError(`input "domains" must not be empty`, nil)
	}

	cert, _, err := a.client.api.Certificates.Create(ctx, &godo.CertificateRequest{
		Name:     req.Name,
		Type:     "lets_encrypt",
		DNSNames: domains,
	})
	if err != nil {
		return nil, classify("requesting certificate", err)
	}

	// Issuance goes through DNS validation; wait for the terminal state.
	var issued *godo.Certificate
	err = a.client.waitFor(ctx, "certificate "+req.Name, func(ctx context.Context) (bool, error) {
		c, _, gerr := a.client.api.Certificates.Get(ctx, cert.ID)
		if gerr != nil {
			return false, classify("polling certificate", gerr)
		}
		switch c.State {
		case "verified":
			issued = c
			return true, nil
		case "error":
			return false, engine.NewPermanentError("certificate issuance failed", nil)
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}

	return &engine.AdapterResult{
		Outputs: map[string]any{
			"id":               issued.ID,
			"state":            issued.State,
			"not_after":        issued.NotAfter,
			"sha1_fingerprint": issued.SHA1Fingerprint,
		},
	}, nil
}

func (a *CertificateAdapter) Update(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	return nil, engine.NewUnsupportedError("certificates are replaced, not updated")
}

func (a *CertificateAdapter) Delete(ctx context.Context, req engine.AdapterRequest) error {
	id, ok := outputString(req.PriorOutputs, "id")
	if !ok {
		return nil
	}
	if _, err := a.client.api.Certificates.Delete(ctx, id); err != nil && !isNotFound(err) {
		return classify("deleting certificate", err)
	}
	return nil
}
