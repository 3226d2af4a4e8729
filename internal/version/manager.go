// Package version implements the operations an operator invokes against the
// version manifest: show, pull, pull-latest, set, rollback, resolve-tags,
// safe-update and env generation. The manager is stateless between
// invocations; all state lives in the manifest store.
package version

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stevedore-sh/stevedore/internal/config"
	"github.com/stevedore-sh/stevedore/internal/envfile"
	"github.com/stevedore-sh/stevedore/internal/manifest"
	"github.com/stevedore-sh/stevedore/pkg/imageref"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// Fetcher pulls an image reference with retry. Implemented by
// registry.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) error
}

// Resolver maps tags to digests and mutable labels to semantic tags.
// Implemented by registry.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, repository, tag string) (string, error)
	SemanticTag(ctx context.Context, repository, tag string) (string, bool)
}

// HealthChecker reports per-service health after a deployment change. The
// map is keyed by logical service name; a nil value means healthy.
type HealthChecker interface {
	Check(ctx context.Context, services map[string]string) (map[string]error, error)
}

// Manager composes the store, fetcher and resolver into the operator-facing
// operations.
type Manager struct {
	cfg       *config.Config
	store     *manifest.Store
	fetcher   Fetcher
	resolver  Resolver
	projector *envfile.Projector
	health    HealthChecker
	now       func() time.Time
}

// NewManager wires a manager. health may be nil when safe-update is not
// used.
func NewManager(cfg *config.Config, store *manifest.Store, fetcher Fetcher, resolver Resolver, projector *envfile.Projector, health HealthChecker) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		fetcher:   fetcher,
		resolver:  resolver,
		projector: projector,
		health:    health,
		now:       time.Now,
	}
}

// Current returns the manifest for read-only display, nil when versioning is
// not yet enabled.
func (m *Manager) Current() (*manifest.Manifest, error) {
	return m.store.Load()
}

// targets expands an optional service filter to the list of services an
// operation applies to.
func (m *Manager) targets(service string) ([]string, error) {
	if service == "" {
		return m.cfg.ServiceNames(), nil
	}
	if _, ok := m.cfg.Services[service]; !ok {
		return nil, fmt.Errorf("unknown service: %s", service)
	}
	return []string{service}, nil
}

// currentTag returns the tag recorded for a service, falling back to the
// configured default when the service is untracked.
func (m *Manager) currentTag(mf *manifest.Manifest, name string) string {
	if mf != nil {
		if svc := mf.Services[name]; svc != nil {
			return svc.CurrentTag
		}
	}
	return m.cfg.Services[name].DefaultTag
}

// resolveDigest resolves repository:tag to a digest, degrading to tag-only
// identity with a warning on failure. Digest precision is an enhancement,
// not a requirement for deployment.
func (m *Manager) resolveDigest(ctx context.Context, res *Result, repository, tag string) string {
	dgst, err := m.resolver.Resolve(ctx, repository, tag)
	if err != nil {
		logger.Warn("Digest resolution failed, proceeding with tag-only identity",
			"service", res.Service, "tag", tag, "error", err)
		res.warnf(fmt.Sprintf("digest not resolved for %s:%s, tracking by tag only", repository, tag))
		return ""
	}
	return dgst
}

// record commits one service's version change as a single manifest mutation.
func (m *Manager) record(ctx context.Context, name, repository, tag, dgst string, prov manifest.Provenance) error {
	return m.store.Mutate(ctx, func(mf *manifest.Manifest) error {
		if mf.DeploymentID == "" {
			mf.DeploymentID = m.cfg.DeploymentID
		}
		mf.Record(name, repository, tag, dgst, prov, m.now(), m.store.HistoryLimit())
		if notes := m.cfg.Services[name].Notes; notes != "" {
			mf.Services[name].Notes = notes
		}
		return nil
	})
}

// regenerateEnv refreshes the derived override file after mutations. The
// file is derived state, so failure here is a warning rather than an
// operation failure.
func (m *Manager) regenerateEnv() {
	mf, err := m.store.Load()
	if err != nil {
		logger.Warn("Skipping env regeneration, manifest unreadable", "error", err)
		return
	}
	if _, err := m.projector.Generate(mf); err != nil {
		logger.Warn("Failed to regenerate environment overrides", "error", err)
	}
}

// fetchAll pulls one reference per entry concurrently, bounded by the
// configured worker limit so a burst of pulls does not trip registry
// throttling. Results are delivered in input order.
type fetchJob struct {
	service string
	ref     string
}

func (m *Manager) fetchAll(ctx context.Context, jobs []fetchJob) []error {
	errs := make([]error, len(jobs))
	sem := make(chan struct{}, m.cfg.Workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job fetchJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			errs[i] = m.fetcher.Fetch(ctx, job.ref)
		}(i, job)
	}
	wg.Wait()
	return errs
}

// ref builds the tagged image reference for a configured service.
func (m *Manager) ref(name, tag string) (string, error) {
	repo, err := m.cfg.Repository(name)
	if err != nil {
		return "", err
	}
	return imageref.Tagged(repo, tag), nil
}
