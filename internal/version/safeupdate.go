package version

import (
	"context"
	"fmt"

	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// SafeUpdate updates the targeted services to their latest versions with a
// pre-flight backup and automatic revert: after the update, the health
// checker is consulted and any unhealthy service is rolled back to its
// pre-update version. When that revert itself fails, both failures are
// reported distinctly; the operation never claims success for a reverted or
// unrevertable service.
func (m *Manager) SafeUpdate(ctx context.Context, service string) (*Report, error) {
	if m.health == nil {
		return nil, fmt.Errorf("safe-update requires a health checker")
	}

	// Explicit pre-update backup, identical to the automatic pre-mutation
	// backups and kept alongside them.
	backupPath, err := m.store.Backup()
	if err != nil {
		return nil, fmt.Errorf("failed to take pre-update backup: %w", err)
	}
	if backupPath != "" {
		logger.Info("Pre-update backup created", "path", backupPath)
	}

	report, err := m.PullLatest(ctx, service)
	if err != nil {
		return nil, err
	}

	// Only services whose version actually moved need a health verdict.
	updated := make(map[string]string)
	for _, res := range report.Results {
		if res.Err == nil && res.Changed {
			updated[res.Service] = m.cfg.Services[res.Service].ComposeName
		}
	}
	if len(updated) == 0 {
		return report, nil
	}

	verdicts, err := m.health.Check(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("health check failed to run: %w", err)
	}

	for i := range report.Results {
		res := &report.Results[i]
		healthErr, checked := verdicts[res.Service]
		if !checked || healthErr == nil {
			continue
		}

		logger.Error("Service unhealthy after update, rolling back",
			"service", res.Service, "error", healthErr)
		res.Err = fmt.Errorf("update of %s failed health check: %w", res.Service, healthErr)

		revert, rbErr := m.Rollback(ctx, res.Service, false, "")
		if rbErr != nil {
			res.RevertErr = rbErr
			continue
		}
		rb := revert.Results[0]
		if rb.Err != nil {
			// The failed update cannot be reverted either; surface both.
			res.RevertErr = rb.Err
			continue
		}
		res.Reverted = true
		res.NewTag = rb.NewTag
		res.NewDigest = rb.NewDigest
	}

	if report.AnyChanged() {
		m.regenerateEnv()
	}
	return report, nil
}
