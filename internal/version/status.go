package version

import "context"

// UpdateStatus summarizes how a configured service tracks upstream releases.
type UpdateStatus struct {
	Service    string
	CurrentTag string
	Tracked    bool
	Mutable    bool
	External   bool
}

// CheckUpdates reports, per configured service, whether it rides a mutable
// tag (always up to date on the next pull) or is pinned to a version that
// may have newer releases upstream.
func (m *Manager) CheckUpdates(ctx context.Context) ([]UpdateStatus, error) {
	mf, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	var out []UpdateStatus
	for _, name := range m.cfg.ServiceNames() {
		st := UpdateStatus{
			Service:  name,
			External: m.cfg.Services[name].External,
		}
		if mf != nil {
			if svc := mf.Services[name]; svc != nil {
				st.Tracked = true
				st.CurrentTag = svc.CurrentTag
			}
		}
		if !st.Tracked {
			st.CurrentTag = m.cfg.Services[name].DefaultTag
		}
		st.Mutable = st.CurrentTag == MutableTag
		out = append(out, st)
	}
	return out, nil
}

// GenerateEnv renders the environment overrides from the current manifest.
// An absent manifest emits nothing and is not an error; the orchestration
// layer falls back to its defaults.
func (m *Manager) GenerateEnv() (bool, error) {
	mf, err := m.store.Load()
	if err != nil {
		return false, err
	}
	return m.projector.Generate(mf)
}

// EnvPath returns where overrides are written.
func (m *Manager) EnvPath() string {
	return m.projector.Path()
}
