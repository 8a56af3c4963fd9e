package digitalocean

import (
	"context"

	"github.com/digitalocean/godo"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// ComputeAdapter provisions droplets.
//
// Inputs: region, size, image (required); ssh_keys (fingerprints),
// user_data, tags (optional).
// Outputs: id, ipv4, status.
type ComputeAdapter struct {
	client *Client
}

func (a *ComputeAdapter) Create(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	region, err := stringInput(req.Inputs, "region", true)
	if err != nil {
		return nil, err
	}
	size, err := stringInput(req.Inputs, "size", true)
	if err != nil {
		return nil, err
	}
	image, err := stringInput(req.Inputs, "image", true)
	if err != nil {
		return nil, err
	}
	userData, err := stringInput(req.Inputs, "user_data", false)
	if err != nil {
		return nil, err
	}
	keys, err := stringListInput(req.Inputs, "ssh_keys")
	if err != nil {
		return nil, err
	}
	tags, err := stringListInput(req.Inputs, "tags")
	if err != nil {
		return nil, err
	}

	createReq := &godo.DropletCreateRequest{
		Name:     req.Name,
		Region:   region,
		Size:     size,
		Image:    godo.DropletCreateImage{Slug: image},
		UserData: userData,
		Tags:     tags,
	}
	for _, fp := range keys {
		createReq.SSHKeys = append(createReq.SSHKeys, godo.DropletCreateSSHKey{Fingerprint: fp})
	}

	droplet, _, err := a.client.api.Droplets.Create(ctx, createReq)
	if err != nil {
		return nil, classify("creating droplet", err)
	}

	// The address is only assigned once the droplet is active.
	var active *godo.Droplet
	err = a.client.waitFor(ctx, "droplet "+req.Name, func(ctx context.Context) (bool, error) {
		d, _, gerr := a.client.api.Droplets.Get(ctx, droplet.ID)
		if gerr != nil {
			return false, classify("polling droplet", gerr)
		}
		if d.Status == "active" {
			active = d
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	ipv4, err := active.PublicIPv4()
	if err != nil {
		return nil, engine.NewTransientError("droplet has no public address yet", err)
	}
	return &engine.AdapterResult{
		Outputs: map[string]any{
			"id":     active.ID,
			"ipv4":   ipv4,
			"status": active.Status,
		},
	}, nil
}

// Update resizes the droplet when the size input changed. Region and image
// changes cannot be applied in place; those report unsupported and the
// executor replaces the droplet.
func (a *ComputeAdapter) Update(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	id, ok := outputInt(req.PriorOutputs, "id")
	if !ok {
		return nil, engine.NewPermanentError("prior outputs are missing the droplet id", nil)
	}

	droplet, _, err := a.client.api.Droplets.Get(ctx, id)
	if err != nil {
		return nil, classify("reading droplet", err)
	}

	region, err := stringInput(req.Inputs, "region", true)
	if err != nil {
		return nil, err
	}
	image, err := stringInput(req.Inputs, "image", true)
	if err != nil {
		return nil, err
	}
	if droplet.Region != nil && droplet.Region.Slug != region {
		return nil, engine.NewUnsupportedError("droplet region cannot change in place")
	}
	if droplet.Image != nil && droplet.Image.Slug != "" && droplet.Image.Slug != image {
		return nil, engine.NewUnsupportedError("droplet image cannot change in place")
	}

	size, err := stringInput(req.Inputs, "size", true)
	if err != nil {
		return nil, err
	}
	if droplet.Size != nil && droplet.Size.Slug != size {
		action, _, aerr := a.client.api.DropletActions.Resize(ctx, id, size, true)
		if aerr != nil {
			return nil, classify("resizing droplet", aerr)
		}
		err = a.client.waitFor(ctx, "droplet resize", func(ctx context.Context) (bool, error) {
			act, _, gerr := a.client.api.Actions.Get(ctx, action.ID)
			if gerr != nil {
				return false, classify("polling resize action", gerr)
			}
			if act.Status == "errored" {
				return false, engine.NewPermanentError("droplet resize failed", nil)
			}
			return act.Status == godo.ActionCompleted, nil
		})
		if err != nil {
			return nil, err
		}
		droplet, _, err = a.client.api.Droplets.Get(ctx, id)
		if err != nil {
			return nil, classify("reading droplet", err)
		}
	}

	ipv4, err := droplet.PublicIPv4()
	if err != nil {
		return nil, engine.NewTransientError("droplet has no public address", err)
	}
	return &engine.AdapterResult{
		Outputs: map[string]any{
			"id":     droplet.ID,
			"ipv4":   ipv4,
			"status": droplet.Status,
		},
	}, nil
}

func (a *ComputeAdapter) Delete(ctx context.Context, req engine.AdapterRequest) error {
	id, ok := outputInt(req.PriorOutputs, "id")
	if !ok {
		// Nothing was recorded, so nothing to tear down.
		return nil
	}
	if _, err := a.client.api.Droplets.Delete(ctx, id); err != nil && !isNotFound(err) {
		return classify("deleting droplet", err)
	}
	return nil
}
