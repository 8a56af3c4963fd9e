package digitalocean

import (
	"context"

	"github.com/digitalocean/godo"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// RouteSetAdapter manages a load balancer fronting the platform as the
// reverse-proxy route set.
//
// Inputs: region, instance_id (required); rules (list of
// {entry_port, target_port, protocol, certificate_id}), redirect_https
// (optional). Without rules the balancer forwards 443 to 443 with TLS
// passthrough.
// Outputs: id, endpoint, status.
type RouteSetAdapter struct {
	client *Client
}

func (a *RouteSetAdapter) buildRequest(req engine.AdapterRequest) (*godo.LoadBalancerRequest, error) {
	region, err := stringInput(req.Inputs, "region", true)
	if err != nil {
		return nil, err
	}
	instanceID, err := intInput(req.Inputs, "instance_id", 0)
	if err != nil {
		return nil, err
	}
	if instanceID == 0 {
		return nil, engine.NewPermanentError(`input "instance_id" is required`, nil)
	}
	ruleDocs, err := objectListInput(req.Inputs, "rules")
	if err != nil {
		return nil, err
	}
	redirect, _ := req.Inputs["redirect_https"].(bool)

	rules := make([]godo.ForwardingRule, 0, len(ruleDocs))
	for _, doc := range ruleDocs {
		entryPort, err := intInput(doc, "entry_port", 443)
		if err != nil {
			return nil, err
		}
		targetPort, err := intInput(doc, "target_port", entryPort)
		if err != nil {
			return nil, err
		}
		protocol, err := stringInput(doc, "protocol", false)
		if err != nil {
			return nil, err
		}
		if protocol == "" {
			protocol = "https"
		}
		certificateID, err := stringInput(doc, "certificate_id", false)
		if err != nil {
			return nil, err
		}
		rules = append(rules, godo.ForwardingRule{
			EntryProtocol:  protocol,
			EntryPort:      entryPort,
			TargetProtocol: "http",
			TargetPort:     targetPort,
			CertificateID:  certificateID,
		})
	}
	if len(rules) == 0 {
		rules = append(rules, godo.ForwardingRule{
			EntryProtocol:  "https",
			EntryPort:      443,
			TargetProtocol: "https",
			TargetPort:     443,
			TlsPassthrough: true,
		})
	}

	return &godo.LoadBalancerRequest{
		Name:                req.Name,
		Region:              region,
		ForwardingRules:     rules,
		DropletIDs:          []int{instanceID},
		RedirectHttpToHttps: redirect,
	}, nil
}

func (a *RouteSetAdapter) Create(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	createReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	lb, _, err := a.client.api.LoadBalancers.Create(ctx, createReq)
	if err != nil {
		return nil, classify("creating load balancer", err)
	}

	var active *godo.LoadBalancer
	err = a.client.waitFor(ctx, "load balancer "+req.Name, func(ctx context.Context) (bool, error) {
		got, _, gerr := a.client.api.LoadBalancers.Get(ctx, lb.ID)
		if gerr != nil {
			return false, classify("polling load balancer", gerr)
		}
		if got.Status == "errored" {
			return false, engine.NewPermanentError("load balancer provisioning failed", nil)
		}
		if got.Status == "active" {
			active = got
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	return &engine.AdapterResult{
		Outputs: map[string]any{
			"id":       active.ID,
			"endpoint": active.IP,
			"status":   active.Status,
		},
	}, nil
}

func (a *RouteSetAdapter) Update(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	id, ok := outputString(req.PriorOutputs, "id")
	if !ok {
		return nil, engine.NewPermanentError("prior outputs are missing the load balancer id", nil)
	}
	updateReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	lb, _, err := a.client.api.LoadBalancers.Update(ctx, id, updateReq)
	if err != nil {
		return nil, classify("updating load balancer", err)
	}
	return &engine.AdapterResult{
		Outputs: map[string]any{
			"id":       lb.ID,
			"endpoint": lb.IP,
			"status":   lb.Status,
		},
	}, nil
}

func (a *RouteSetAdapter) Delete(ctx context.Context, req engine.AdapterRequest) error {
	id, ok := outputString(req.PriorOutputs, "id")
	if !ok {
		return nil
	}
	if _, err := a.client.api.LoadBalancers.Delete(ctx, id); err != nil && !isNotFound(err) {
		return classify("deleting load balancer", err)
	}
	return nil
}
