package state

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// snapshotVersion is the current snapshot document version. Importers
// accept this version only; unknown extra fields are ignored so newer
// minor additions stay readable.
const snapshotVersion = 1

// Snapshot is the portable YAML form of a state record. Inputs and outputs
// are already redacted in the record, so a snapshot is safe to commit to a
// backup location.
type Snapshot struct {
	Version    int                `yaml:"version"`
	Serial     int64              `yaml:"serial"`
	ExportedAt time.Time          `yaml:"exported_at"`
	Resources  []ResourceSnapshot `yaml:"resources"`
}

// ResourceSnapshot is one resource entry of a snapshot.
type ResourceSnapshot struct {
	ID        string         `yaml:"id"`
	Type      string         `yaml:"type"`
	Name      string         `yaml:"name"`
	Status    string         `yaml:"status"`
	Inputs    map[string]any `yaml:"inputs,omitempty"`
	Outputs   map[string]any `yaml:"outputs,omitempty"`
	DependsOn []string       `yaml:"depends_on,omitempty"`
	AppliedAt time.Time      `yaml:"applied_at"`
}

// Export renders the record as a versioned YAML snapshot with resources in
// identity order.
func Export(record *engine.StateRecord) ([]byte, error) {
	snap := Snapshot{
		Version:    snapshotVersion,
		Serial:     record.Serial,
		ExportedAt: time.Now().UTC(),
	}

	ids := make([]string, 0, len(record.Resources))
	for id := range record.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rs := record.Resources[id]
		snap.Resources = append(snap.Resources, ResourceSnapshot{
			ID:        id,
			Type:      string(rs.Type),
			Name:      rs.Name,
			Status:    string(rs.Status),
			Inputs:    rs.Inputs,
			Outputs:   rs.Outputs,
			DependsOn: rs.DependsOn,
			AppliedAt: rs.AppliedAt,
		})
	}

	out, err := yaml.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return out, nil
}

// Import parses a YAML snapshot back into a state record. Fields the
// current version does not know are ignored.
func Import(data []byte) (*engine.StateRecord, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, &CorruptError{Detail: "snapshot document", Err: err}
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	record := engine.NewStateRecord()
	record.Serial = snap.Serial
	for _, rs := range snap.Resources {
		status := engine.ResourceStatus(rs.Status)
		if err := status.Validate(); err != nil {
			return nil, &CorruptError{Detail: "resource " + rs.ID, Err: err}
		}
		entry := engine.ResourceState{
			Type:      engine.ResourceType(rs.Type),
			Name:      rs.Name,
			Status:    status,
			Inputs:    rs.Inputs,
			Outputs:   rs.Outputs,
			DependsOn: rs.DependsOn,
			AppliedAt: rs.AppliedAt,
		}
		id := rs.ID
		if id == "" {
			id = entry.ID()
		}
		record.Resources[id] = entry
	}
	return record, nil
}
