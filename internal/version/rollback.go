package version

import (
	"context"
	"fmt"

	"github.com/stevedore-sh/stevedore/internal/manifest"
	"github.com/stevedore-sh/stevedore/pkg/imageref"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// RollbackTarget describes what a rollback would do for one service; used by
// the CLI to show the plan before asking for confirmation.
type RollbackTarget struct {
	Service    string
	CurrentTag string
	TargetTag  string
	// Skipped counts duplicate history entries passed over while locating
	// the previous version.
	Skipped int
	Err     error
}

// PlanRollback computes rollback targets without mutating anything. tag, when
// non-empty, overrides the history-derived previous version. Services with no
// usable previous version get an ErrRollbackUnavailable entry; planning never
// silently drops a requested service.
func (m *Manager) PlanRollback(ctx context.Context, service string, all bool, tag string) ([]RollbackTarget, error) {
	var names []string
	var err error
	switch {
	case all:
		names, err = m.targets("")
	case service != "":
		names, err = m.targets(service)
	default:
		return nil, fmt.Errorf("rollback requires a service name or --all")
	}
	if err != nil {
		return nil, err
	}

	mf, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	var plan []RollbackTarget
	for _, name := range names {
		t := RollbackTarget{Service: name, TargetTag: tag}
		if mf != nil {
			if svc := mf.Services[name]; svc != nil {
				t.CurrentTag = svc.CurrentTag
			}
		}
		if tag == "" {
			if mf == nil {
				t.Err = fmt.Errorf("%w: %s is not tracked yet", ErrRollbackUnavailable, name)
				plan = append(plan, t)
				continue
			}
			prev, skipped, ok := mf.Previous(name)
			if !ok {
				t.Err = fmt.Errorf("%w: %s has no distinct previous version", ErrRollbackUnavailable, name)
				plan = append(plan, t)
				continue
			}
			if skipped > 0 {
				logger.Debug("Skipping duplicate history entries while locating rollback target",
					"service", name, "skipped", skipped)
			}
			t.TargetTag = prev.Tag
			t.Skipped = skipped
		} else if t.CurrentTag == tag {
			t.Err = fmt.Errorf("%w: %s is already on %s", ErrRollbackUnavailable, name, tag)
		}
		plan = append(plan, t)
	}
	return plan, nil
}

// Rollback reverts the targeted services to their previous version (or an
// explicit tag). Each service's revert is fetched and committed
// independently; a failure is reported for that service and never rolls back
// a sibling's already-committed revert. A rollback that would leave current
// state unchanged is an error, not a silent no-op.
func (m *Manager) Rollback(ctx context.Context, service string, all bool, tag string) (*Report, error) {
	plan, err := m.PlanRollback(ctx, service, all, tag)
	if err != nil {
		return nil, err
	}
	return m.executeRollback(ctx, plan)
}

func (m *Manager) executeRollback(ctx context.Context, plan []RollbackTarget) (*Report, error) {
	mf, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, t := range plan {
		res := m.priorResult(mf, t.Service)
		res.Skipped = t.Skipped
		if t.Err != nil {
			res.Err = t.Err
			report.Results = append(report.Results, res)
			continue
		}

		repo, err := m.cfg.Repository(t.Service)
		if err != nil {
			res.Err = err
			report.Results = append(report.Results, res)
			continue
		}

		if err := m.fetcher.Fetch(ctx, imageref.Tagged(repo, t.TargetTag)); err != nil {
			res.Err = err
			report.Results = append(report.Results, res)
			continue
		}

		// Prefer the digest recorded in history; resolve only when the
		// target entry predates digest tracking.
		dgst := m.historyDigest(mf, t.Service, t.TargetTag)
		if dgst == "" {
			dgst = m.resolveDigest(ctx, &res, repo, t.TargetTag)
		}

		if err := m.record(ctx, t.Service, repo, t.TargetTag, dgst, manifest.ProvenanceRollback); err != nil {
			res.Err = err
			report.Results = append(report.Results, res)
			continue
		}

		res.NewTag = t.TargetTag
		res.NewDigest = dgst
		res.Changed = true
		logger.Info("Service rolled back",
			"service", t.Service, "from", res.PriorTag, "to", t.TargetTag)
		report.Results = append(report.Results, res)
	}

	if report.AnyChanged() {
		m.regenerateEnv()
	}
	return report, nil
}

// historyDigest returns the digest recorded for the most recent history
// entry with the given tag, empty when unknown.
func (m *Manager) historyDigest(mf *manifest.Manifest, name, tag string) string {
	if mf == nil {
		return ""
	}
	for _, e := range mf.History[name] {
		if e.Tag == tag && e.Digest != "" {
			return e.Digest
		}
	}
	return ""
}
