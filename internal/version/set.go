package version

import (
	"context"

	"github.com/stevedore-sh/stevedore/internal/manifest"
	"github.com/stevedore-sh/stevedore/pkg/imageref"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// Set pins a service to an explicit tag (hotfixes, manual pinning): fetch
// the tag, resolve its digest, record a history entry marked custom and set
// it as current. A fetch failure aborts before any manifest change.
func (m *Manager) Set(ctx context.Context, service, tag string) (*Report, error) {
	if _, err := m.targets(service); err != nil {
		return nil, err
	}

	mf, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	repo, err := m.cfg.Repository(service)
	if err != nil {
		return nil, err
	}

	res := m.priorResult(mf, service)
	report := &Report{Results: []Result{res}}
	out := &report.Results[0]

	if err := m.fetcher.Fetch(ctx, imageref.Tagged(repo, tag)); err != nil {
		out.Err = err
		return report, nil
	}

	dgst := m.resolveDigest(ctx, out, repo, tag)
	if err := m.record(ctx, service, repo, tag, dgst, manifest.ProvenanceCustom); err != nil {
		out.Err = err
		return report, nil
	}

	out.NewTag = tag
	out.NewDigest = dgst
	out.Changed = out.NewTag != out.PriorTag || out.NewDigest != out.PriorDigest
	logger.Info("Custom version set", "service", service, "tag", tag, "digest", dgst)

	m.regenerateEnv()
	return report, nil
}
