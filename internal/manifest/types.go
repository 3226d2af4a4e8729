package manifest

import (
	"fmt"
	"time"
)

// Provenance records why a history entry was created.
type Provenance string

const (
	ProvenancePulled   Provenance = "pulled"
	ProvenanceCustom   Provenance = "custom"
	ProvenanceRollback Provenance = "rollback"
)

// DefaultHistoryLimit is the per-service history cap when the config does not
// override it.
const DefaultHistoryLimit = 5

// SchemaVersion identifies the manifest file layout.
const SchemaVersion = "1.0"

// HistoryEntry is an immutable record of one version transition.
// Digest may be empty for entries written before digest resolution existed;
// such entries compare by tag alone.
type HistoryEntry struct {
	Tag        string     `yaml:"tag"`
	Digest     string     `yaml:"digest,omitempty"`
	DeployedAt time.Time  `yaml:"deployed_at"`
	Provenance Provenance `yaml:"provenance"`
}

// SameVersion reports whether the entry records the same deployed identity as
// the given tag+digest pair. When either digest is unknown only the tag is
// compared, so digestless manifests from older deployments stay readable.
func (e HistoryEntry) SameVersion(tag, dgst string) bool {
	if e.Tag != tag {
		return false
	}
	if e.Digest == "" || dgst == "" {
		return true
	}
	return e.Digest == dgst
}

// Service is the current deployed state of one logical service.
type Service struct {
	Repository    string    `yaml:"repository"`
	CurrentTag    string    `yaml:"current_tag"`
	CurrentDigest string    `yaml:"current_digest,omitempty"`
	UpdatedAt     time.Time `yaml:"updated_at"`
	Notes         string    `yaml:"notes,omitempty"`
}

// Manifest is the persisted version-tracking record for all services.
type Manifest struct {
	SchemaVersion string                    `yaml:"schema_version"`
	DeploymentID  string                    `yaml:"deployment_id,omitempty"`
	Services      map[string]*Service       `yaml:"services"`
	History       map[string][]HistoryEntry `yaml:"history"`
}

// New returns an empty manifest with the current schema version.
func New(deploymentID string) *Manifest {
	return &Manifest{
		SchemaVersion: SchemaVersion,
		DeploymentID:  deploymentID,
		Services:      make(map[string]*Service),
		History:       make(map[string][]HistoryEntry),
	}
}

// Validate checks structural invariants before the manifest is persisted.
func (m *Manifest) Validate() error {
	if m.SchemaVersion == "" {
		return fmt.Errorf("manifest has no schema_version")
	}
	for name, svc := range m.Services {
		if name == "" {
			return fmt.Errorf("manifest contains a service with an empty name")
		}
		if svc == nil {
			return fmt.Errorf("service %q has no record", name)
		}
		if svc.Repository == "" {
			return fmt.Errorf("service %q has no repository", name)
		}
		if svc.CurrentTag == "" {
			return fmt.Errorf("service %q has no current tag", name)
		}
	}
	for name, entries := range m.History {
		for i, e := range entries {
			if e.Tag == "" {
				return fmt.Errorf("history entry %d for service %q has no tag", i, name)
			}
		}
	}
	return nil
}

// Record appends a history entry and sets the new current state for a
// service, creating the service record on first use. The history append and
// the current-state change happen in the same in-memory transaction so a
// partially applied transition is never persisted.
func (m *Manifest) Record(name, repository, tag, dgst string, prov Provenance, now time.Time, limit int) {
	if m.Services == nil {
		m.Services = make(map[string]*Service)
	}
	if m.History == nil {
		m.History = make(map[string][]HistoryEntry)
	}

	entry := HistoryEntry{
		Tag:        tag,
		Digest:     dgst,
		DeployedAt: now,
		Provenance: prov,
	}
	// Move-to-front: older entries recording the same identity are dropped
	// so re-deploying a version does not pad the history with duplicates.
	kept := make([]HistoryEntry, 0, len(m.History[name])+1)
	kept = append(kept, entry)
	for _, e := range m.History[name] {
		if e.SameVersion(tag, dgst) {
			continue
		}
		kept = append(kept, e)
	}
	m.History[name] = kept
	m.TrimHistory(name, limit)

	svc := m.Services[name]
	if svc == nil {
		svc = &Service{}
		m.Services[name] = svc
	}
	svc.Repository = repository
	svc.CurrentTag = tag
	svc.CurrentDigest = dgst
	svc.UpdatedAt = now
}

// TrimHistory enforces the bounded history cap for one service, evicting the
// oldest entries.
func (m *Manifest) TrimHistory(name string, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if entries := m.History[name]; len(entries) > limit {
		m.History[name] = entries[:limit]
	}
}

// Previous returns the rollback target for a service: the most recent history
// entry whose identity differs from the current one. Consecutive duplicate
// entries (a pull re-run with no change) are skipped; the skip count is
// returned so callers can surface it in diagnostics. ok is false when no
// distinct previous version exists.
func (m *Manifest) Previous(name string) (entry HistoryEntry, skipped int, ok bool) {
	svc := m.Services[name]
	if svc == nil {
		return HistoryEntry{}, 0, false
	}
	matched := 0
	for _, e := range m.History[name] {
		if e.SameVersion(svc.CurrentTag, svc.CurrentDigest) {
			matched++
			continue
		}
		// The first matching entry is the record of the current version
		// itself; anything beyond that is a duplicate that was skipped.
		skipped = matched - 1
		if skipped < 0 {
			skipped = 0
		}
		return e, skipped, true
	}
	return HistoryEntry{}, 0, false
}

// ServiceNames returns the tracked service names in no particular order.
func (m *Manifest) ServiceNames() []string {
	names := make([]string, 0, len(m.Services))
	for name := range m.Services {
		names = append(names, name)
	}
	return names
}
