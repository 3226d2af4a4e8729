package version

import (
	"context"

	"github.com/stevedore-sh/stevedore/internal/manifest"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// Pull re-fetches the currently recorded tag for the targeted services
// (all when service is empty). It is an idempotent re-pull: history does not
// advance and the manifest is not written. When the manifest is absent every
// service is fetched at its default tag, still without creating a manifest.
func (m *Manager) Pull(ctx context.Context, service string) (*Report, error) {
	names, err := m.targets(service)
	if err != nil {
		return nil, err
	}

	mf, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if mf == nil {
		logger.Info("No manifest yet, pulling default tags", "services", len(names))
	}

	jobs := make([]fetchJob, 0, len(names))
	report := &Report{}
	for _, name := range names {
		tag := m.currentTag(mf, name)
		ref, err := m.ref(name, tag)
		if err != nil {
			report.Results = append(report.Results, Result{Service: name, Err: err})
			continue
		}
		jobs = append(jobs, fetchJob{service: name, ref: ref})
		report.Results = append(report.Results, Result{
			Service:  name,
			PriorTag: tag,
			NewTag:   tag,
		})
	}

	errs := m.fetchAll(ctx, jobs)
	ji := 0
	for i := range report.Results {
		if report.Results[i].Err != nil {
			continue
		}
		report.Results[i].Err = errs[ji]
		ji++
	}
	return report, nil
}

// PullLatest fetches the default (mutable) tag for the targeted services,
// resolves each to a digest, and records the new current version with a
// history entry. Initializes the manifest on first use. One service's
// failure does not abort its siblings.
func (m *Manager) PullLatest(ctx context.Context, service string) (*Report, error) {
	names, err := m.targets(service)
	if err != nil {
		return nil, err
	}
	// Surface a corrupt manifest before any fetching happens.
	mf, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	jobs := make([]fetchJob, 0, len(names))
	type target struct {
		name string
		repo string
		tag  string
	}
	targets := make([]target, 0, len(names))

	for _, name := range names {
		tag := m.cfg.Services[name].DefaultTag
		repo, err := m.cfg.Repository(name)
		if err != nil {
			report.Results = append(report.Results, Result{Service: name, Err: err})
			continue
		}
		prior := m.priorResult(mf, name)
		report.Results = append(report.Results, prior)
		targets = append(targets, target{name: name, repo: repo, tag: tag})
		jobs = append(jobs, fetchJob{service: name, ref: repo + ":" + tag})
	}

	errs := m.fetchAll(ctx, jobs)

	ji := 0
	for i := range report.Results {
		res := &report.Results[i]
		if res.Err != nil {
			continue
		}
		t := targets[ji]
		fetchErr := errs[ji]
		ji++

		if fetchErr != nil {
			res.Err = fetchErr
			continue
		}

		dgst := m.resolveDigest(ctx, res, t.repo, t.tag)
		if err := m.record(ctx, t.name, t.repo, t.tag, dgst, manifest.ProvenancePulled); err != nil {
			res.Err = err
			continue
		}
		res.NewTag = t.tag
		res.NewDigest = dgst
		res.Changed = res.NewTag != res.PriorTag || res.NewDigest != res.PriorDigest
		logger.Info("Service updated", "service", t.name, "tag", t.tag, "digest", dgst)
	}

	if report.AnyChanged() {
		m.regenerateEnv()
	}
	return report, nil
}

// priorResult seeds a Result with the service's pre-operation version.
func (m *Manager) priorResult(mf *manifest.Manifest, name string) Result {
	res := Result{Service: name}
	if mf != nil {
		if svc := mf.Services[name]; svc != nil {
			res.PriorTag = svc.CurrentTag
			res.PriorDigest = svc.CurrentDigest
		}
	}
	res.NewTag = res.PriorTag
	res.NewDigest = res.PriorDigest
	return res
}
