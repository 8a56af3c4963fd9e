package digitalocean

import (
	"context"
	"fmt"

	"github.com/digitalocean/godo"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// RecordSetAdapter manages the domain records for one name as a unit.
//
// Inputs: domain, record_type, targets (required); name (subdomain,
// defaults to the apex "@"), ttl (optional).
// Outputs: fqdn, record_ids.
//
// Record sets never update in place: the registrar treats the name as
// uniquely constrained, so changes arrive as a delete followed by a create.
type RecordSetAdapter struct {
	client *Client
}

func (a *RecordSetAdapter) Create(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	domain, err := stringInput(req.Inputs, "domain", true)
	if err != nil {
		return nil, err
	}
	recordType, err := stringInput(req.Inputs, "record_type", true)
	if err != nil {
		return nil, err
	}
	targets, err := stringListInput(req.Inputs, "targets")
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, engine.NewPermanentError(`input "targets" must not be empty`, nil)
	}
	name, err := stringInput(req.Inputs, "name", false)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "@"
	}
	ttl, err := intInput(req.Inputs, "ttl", 600)
	if err != nil {
		return nil, err
	}

	// The zone must exist before records can land in it. An already-exists
	// rejection means someone else created it, which is fine.
	if _, _, err := a.client.api.Domains.Create(ctx, &godo.DomainCreateRequest{Name: domain}); err != nil && !isConflict(err) {
		return nil, classify("creating domain", err)
	}

	ids := make([]any, 0, len(targets))
	for _, target := range targets {
		record, _, err := a.client.api.Domains.CreateRecord(ctx, domain, &godo.DomainRecordEditRequest{
			Type: recordType,
			Name: name,
			Data: target,
			TTL:  ttl,
		})
		if err != nil {
			// Roll the partial set back so a retry starts clean.
			for _, id := range ids {
				_, _ = a.client.api.Domains.DeleteRecord(ctx, domain, id.(int))
			}
			return nil, classify(fmt.Sprintf("creating %s record for %s", recordType, target), err)
		}
		ids = append(ids, record.ID)
	}

	fqdn := domain
	if name != "@" {
		fqdn = name + "." + domain
	}
	return &engine.AdapterResult{
		Outputs: map[string]any{
			"fqdn":       fqdn,
			"domain":     domain,
			"record_ids": ids,
		},
	}, nil
}

func (a *RecordSetAdapter) Update(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	return nil, engine.NewUnsupportedError("record sets are replaced, not updated")
}

func (a *RecordSetAdapter) Delete(ctx context.Context, req engine.AdapterRequest) error {
	domain, ok := outputString(req.PriorOutputs, "domain")
	if !ok {
		return nil
	}
	rawIDs, ok := req.PriorOutputs["record_ids"].([]any)
	if !ok {
		return nil
	}
	for _, raw := range rawIDs {
		id, ok := numericID(raw)
		if !ok {
			continue
		}
		if _, err := a.client.api.Domains.DeleteRecord(ctx, domain, id); err != nil && !isNotFound(err) {
			return classify(fmt.Sprintf("deleting record %d", id), err)
		}
	}
	return nil
}

// numericID copes with ids round-tripped through JSON as float64.
func numericID(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
