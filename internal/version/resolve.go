package version

import (
	"context"
	"fmt"

	"github.com/stevedore-sh/stevedore/internal/manifest"
	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// MutableTag is the rolling release label that does not uniquely identify
// deployed content.
const MutableTag = "latest"

// ResolveTags resolves the digest for every tracked service still on a
// mutable tag and, when the engine knows a semantic version tag for the same
// content, pins the record to it. The tag pinning rewrites the current state
// and the matching history entry in place; no new history entry is created
// because the deployed content does not change. Resolution failures are
// per-service warnings, not fatal.
func (m *Manager) ResolveTags(ctx context.Context) (*Report, error) {
	mf, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	report := &Report{}
	if mf == nil {
		logger.Warn("No manifest to resolve, run pull-latest first")
		return report, nil
	}

	names := mf.ServiceNames()
	for _, name := range m.cfg.ServiceNames() {
		if !contains(names, name) {
			continue
		}
		svc := mf.Services[name]
		res := m.priorResult(mf, name)

		if m.cfg.Services[name].External {
			res.warnf(fmt.Sprintf("%s is externally versioned, skipping resolution", name))
			report.Results = append(report.Results, res)
			continue
		}
		if svc.CurrentTag != MutableTag {
			logger.Debug("Service already pinned", "service", name, "tag", svc.CurrentTag)
			report.Results = append(report.Results, res)
			continue
		}

		dgst, err := m.resolver.Resolve(ctx, svc.Repository, svc.CurrentTag)
		if err != nil {
			// Degrade: keep tag-only identity, warn, operation still succeeds.
			logger.Warn("Could not resolve digest", "service", name, "error", err)
			res.warnf(fmt.Sprintf("could not resolve %s:%s, keeping tag-only identity", svc.Repository, svc.CurrentTag))
			report.Results = append(report.Results, res)
			continue
		}

		pinnedTag, havePin := m.resolver.SemanticTag(ctx, svc.Repository, svc.CurrentTag)

		err = m.store.Mutate(ctx, func(cur *manifest.Manifest) error {
			s := cur.Services[name]
			if s == nil {
				return fmt.Errorf("service %s vanished from manifest", name)
			}
			s.CurrentDigest = dgst
			if havePin {
				s.CurrentTag = pinnedTag
			}
			// Rewrite the entry that recorded this deployment instead of
			// appending: the deployed content is unchanged.
			for i, e := range cur.History[name] {
				if e.Tag == MutableTag && e.SameVersion(MutableTag, dgst) {
					cur.History[name][i].Digest = dgst
					if havePin {
						cur.History[name][i].Tag = pinnedTag
					}
					break
				}
			}
			return nil
		})
		if err != nil {
			res.Err = err
			report.Results = append(report.Results, res)
			continue
		}

		res.NewDigest = dgst
		if havePin {
			res.NewTag = pinnedTag
			logger.Info("Resolved mutable tag", "service", name, "tag", pinnedTag, "digest", dgst)
		} else {
			logger.Info("Resolved digest", "service", name, "digest", dgst)
		}
		res.Changed = res.NewTag != res.PriorTag || res.NewDigest != res.PriorDigest
		report.Results = append(report.Results, res)
	}

	if report.AnyChanged() {
		m.regenerateEnv()
	}
	return report, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
