package version

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevedore-sh/stevedore/internal/config"
	"github.com/stevedore-sh/stevedore/internal/envfile"
	"github.com/stevedore-sh/stevedore/internal/manifest"
)

// fakeFetcher records pulled refs and fails the ones scripted to fail.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) error {
	f.mu.Lock()
	f.calls = append(f.calls, ref)
	f.mu.Unlock()
	if err, ok := f.fail[ref]; ok {
		return err
	}
	return nil
}

func (f *fakeFetcher) fetched(ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == ref {
			return true
		}
	}
	return false
}

// fakeResolver serves digests and semantic pins from maps; missing keys fail.
type fakeResolver struct {
	digests  map[string]string // "repo:tag" -> digest
	semantic map[string]string // "repo:tag" -> pinned tag
}

func (r *fakeResolver) Resolve(ctx context.Context, repository, tag string) (string, error) {
	if d, ok := r.digests[repository+":"+tag]; ok {
		return d, nil
	}
	return "", errors.New("digest resolution unavailable")
}

func (r *fakeResolver) SemanticTag(ctx context.Context, repository, tag string) (string, bool) {
	t, ok := r.semantic[repository+":"+tag]
	return t, ok
}

// fakeHealth returns a scripted verdict per service.
type fakeHealth struct {
	verdicts map[string]error
	err      error
}

func (h *fakeHealth) Check(ctx context.Context, services map[string]string) (map[string]error, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := make(map[string]error)
	for name := range services {
		out[name] = h.verdicts[name]
	}
	return out, nil
}

type fixture struct {
	cfg      *config.Config
	store    *manifest.Store
	fetcher  *fakeFetcher
	resolver *fakeResolver
	health   *fakeHealth
	envPath  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DeploymentID: "deploy-1",
		Registry:     "registry.example.com",
		Workers:      2,
		Services: map[string]config.ServiceConfig{
			"web": {DefaultTag: "latest", ComposeName: "web"},
			"api": {DefaultTag: "latest", ComposeName: "api"},
		},
	}
	return &fixture{
		cfg:      cfg,
		store:    manifest.NewStore(filepath.Join(dir, "version-manifest.yaml"), filepath.Join(dir, ".version-backups"), 5),
		fetcher:  &fakeFetcher{fail: make(map[string]error)},
		resolver: &fakeResolver{digests: make(map[string]string), semantic: make(map[string]string)},
		health:   &fakeHealth{verdicts: make(map[string]error)},
		envPath:  filepath.Join(dir, "versions.env"),
	}
}

func (f *fixture) manager() *Manager {
	proj := envfile.New(f.envPath, "STACK", f.cfg.Registry)
	return NewManager(f.cfg, f.store, f.fetcher, f.resolver, proj, f.health)
}

// seed records an existing version for a service directly through the store.
func (f *fixture) seed(t *testing.T, name, tag, dgst string) {
	t.Helper()
	repo := f.cfg.Registry + "/" + name
	err := f.store.Mutate(context.Background(), func(mf *manifest.Manifest) error {
		mf.Record(name, repo, tag, dgst, manifest.ProvenancePulled, time.Now(), 5)
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) load(t *testing.T) *manifest.Manifest {
	t.Helper()
	mf, err := f.store.Load()
	require.NoError(t, err)
	return mf
}

func TestPull_DoesNotCreateManifest(t *testing.T) {
	f := newFixture(t)
	m := f.manager()

	report, err := m.Pull(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.OK())

	// Default tags were fetched for both services.
	assert.True(t, f.fetcher.fetched("registry.example.com/web:latest"))
	assert.True(t, f.fetcher.fetched("registry.example.com/api:latest"))

	// Pull is read-only: still no manifest on disk.
	assert.Nil(t, f.load(t))
}

func TestPull_UsesRecordedTag(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "")
	m := f.manager()

	_, err := m.Pull(context.Background(), "web")
	require.NoError(t, err)
	assert.True(t, f.fetcher.fetched("registry.example.com/web:1.1"))
}

func TestPull_UnknownService(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager().Pull(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service")
}

func TestPullLatest_RecordsVersionAndGeneratesEnv(t *testing.T) {
	f := newFixture(t)
	f.resolver.digests["registry.example.com/web:latest"] = "sha256:aaa"
	f.resolver.digests["registry.example.com/api:latest"] = "sha256:bbb"
	m := f.manager()

	report, err := m.PullLatest(context.Background(), "")
	require.NoError(t, err)
	require.True(t, report.OK())
	assert.True(t, report.AnyChanged())

	mf := f.load(t)
	require.NotNil(t, mf)
	assert.Equal(t, "deploy-1", mf.DeploymentID)
	assert.Equal(t, "latest", mf.Services["web"].CurrentTag)
	assert.Equal(t, "sha256:aaa", mf.Services["web"].CurrentDigest)
	require.Len(t, mf.History["web"], 1)
	assert.Equal(t, manifest.ProvenancePulled, mf.History["web"][0].Provenance)

	// Env overrides were projected.
	_, err = os.Stat(f.envPath)
	require.NoError(t, err)
}

func TestPullLatest_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.fetcher.fail["registry.example.com/api:latest"] = errors.New("registry down")
	f.resolver.digests["registry.example.com/web:latest"] = "sha256:aaa"
	m := f.manager()

	report, err := m.PullLatest(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.Partial())
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "api", report.Failed()[0].Service)

	// web's update committed despite api's failure; api left untracked.
	mf := f.load(t)
	require.NotNil(t, mf)
	assert.Contains(t, mf.Services, "web")
	assert.NotContains(t, mf.Services, "api")
}

func TestPullLatest_DegradesWithoutDigest(t *testing.T) {
	f := newFixture(t)
	// Resolver knows nothing: update still succeeds with tag-only identity.
	m := f.manager()

	report, err := m.PullLatest(context.Background(), "web")
	require.NoError(t, err)
	require.True(t, report.OK())
	res := report.Results[0]
	assert.Empty(t, res.NewDigest)
	assert.NotEmpty(t, res.Warnings)

	mf := f.load(t)
	assert.Empty(t, mf.Services["web"].CurrentDigest)
}

func TestSet_RecordsCustomVersion(t *testing.T) {
	f := newFixture(t)
	f.resolver.digests["registry.example.com/web:1.9-hotfix"] = "sha256:fff"
	m := f.manager()

	report, err := m.Set(context.Background(), "web", "1.9-hotfix")
	require.NoError(t, err)
	require.True(t, report.OK())
	assert.True(t, report.Results[0].Changed)

	mf := f.load(t)
	assert.Equal(t, "1.9-hotfix", mf.Services["web"].CurrentTag)
	assert.Equal(t, manifest.ProvenanceCustom, mf.History["web"][0].Provenance)
}

func TestSet_FetchFailureLeavesManifestUntouched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "sha256:aaa")
	f.fetcher.fail["registry.example.com/web:9.9"] = errors.New("manifest unknown")
	m := f.manager()

	report, err := m.Set(context.Background(), "web", "9.9")
	require.NoError(t, err)
	require.Error(t, report.Results[0].Err)

	mf := f.load(t)
	assert.Equal(t, "1.1", mf.Services["web"].CurrentTag)
	require.Len(t, mf.History["web"], 1)
}

func TestRollback_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "sha256:aaa")
	f.seed(t, "web", "1.2", "sha256:bbb")
	m := f.manager()

	report, err := m.Rollback(context.Background(), "web", false, "")
	require.NoError(t, err)
	require.True(t, report.OK())
	res := report.Results[0]
	assert.Equal(t, "1.2", res.PriorTag)
	assert.Equal(t, "1.1", res.NewTag)
	// The digest came from history, no resolver round trip needed.
	assert.Equal(t, "sha256:aaa", res.NewDigest)

	mf := f.load(t)
	assert.Equal(t, "1.1", mf.Services["web"].CurrentTag)
	// Rolling back moves 1.1 to the front rather than appending a duplicate.
	require.Len(t, mf.History["web"], 2)
	assert.Equal(t, "1.1", mf.History["web"][0].Tag)
	assert.Equal(t, manifest.ProvenanceRollback, mf.History["web"][0].Provenance)
	assert.Equal(t, "1.2", mf.History["web"][1].Tag)
}

func TestRollback_UnavailableLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "sha256:aaa")
	m := f.manager()

	before := f.load(t)
	report, err := m.Rollback(context.Background(), "web", false, "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Results[0].Err, ErrRollbackUnavailable)

	after := f.load(t)
	assert.Equal(t, before.Services["web"].CurrentTag, after.Services["web"].CurrentTag)
	assert.Len(t, after.History["web"], len(before.History["web"]))
}

func TestRollback_ExplicitTag(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "sha256:aaa")
	f.seed(t, "web", "1.2", "sha256:bbb")
	f.seed(t, "web", "1.3", "sha256:ccc")
	m := f.manager()

	report, err := m.Rollback(context.Background(), "web", false, "1.1")
	require.NoError(t, err)
	require.True(t, report.OK())
	assert.Equal(t, "1.1", report.Results[0].NewTag)
	assert.Equal(t, "sha256:aaa", report.Results[0].NewDigest)
}

func TestRollback_AlreadyOnExplicitTag(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.2", "sha256:bbb")
	m := f.manager()

	report, err := m.Rollback(context.Background(), "web", false, "1.2")
	require.NoError(t, err)
	assert.ErrorIs(t, report.Results[0].Err, ErrRollbackUnavailable)
}

func TestRollback_RequiresServiceOrAll(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager().Rollback(context.Background(), "", false, "")
	require.Error(t, err)
}

func TestPlanRollback_ReportsUntrackedServices(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "")
	f.seed(t, "web", "1.2", "")
	m := f.manager()

	plan, err := m.PlanRollback(context.Background(), "", true, "")
	require.NoError(t, err)
	require.Len(t, plan, 2)

	byName := map[string]RollbackTarget{}
	for _, tgt := range plan {
		byName[tgt.Service] = tgt
	}
	assert.ErrorIs(t, byName["api"].Err, ErrRollbackUnavailable)
	assert.NoError(t, byName["web"].Err)
	assert.Equal(t, "1.1", byName["web"].TargetTag)
}

func TestResolveTags_PinsMutableTag(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "latest", "")
	f.seed(t, "api", "2.0", "sha256:eee")
	f.resolver.digests["registry.example.com/web:latest"] = "sha256:aaa"
	f.resolver.semantic["registry.example.com/web:latest"] = "1.14.2"
	m := f.manager()

	report, err := m.ResolveTags(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK())

	mf := f.load(t)
	assert.Equal(t, "1.14.2", mf.Services["web"].CurrentTag)
	assert.Equal(t, "sha256:aaa", mf.Services["web"].CurrentDigest)
	// In-place rewrite: no new history entry for unchanged content.
	require.Len(t, mf.History["web"], 1)
	assert.Equal(t, "1.14.2", mf.History["web"][0].Tag)

	// Already-pinned services are untouched.
	assert.Equal(t, "2.0", mf.Services["api"].CurrentTag)
}

func TestResolveTags_DegradesOnResolutionFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "latest", "")
	m := f.manager()

	report, err := m.ResolveTags(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK())

	var webRes *Result
	for i := range report.Results {
		if report.Results[i].Service == "web" {
			webRes = &report.Results[i]
		}
	}
	require.NotNil(t, webRes)
	assert.NotEmpty(t, webRes.Warnings)

	mf := f.load(t)
	assert.Equal(t, "latest", mf.Services["web"].CurrentTag)
	assert.Empty(t, mf.Services["web"].CurrentDigest)
}

func TestResolveTags_SkipsExternalServices(t *testing.T) {
	f := newFixture(t)
	svc := f.cfg.Services["web"]
	svc.External = true
	f.cfg.Services["web"] = svc
	f.seed(t, "web", "latest", "")
	f.resolver.digests["registry.example.com/web:latest"] = "sha256:aaa"
	m := f.manager()

	report, err := m.ResolveTags(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK())

	mf := f.load(t)
	assert.Empty(t, mf.Services["web"].CurrentDigest)
}

func TestSafeUpdate_RevertsUnhealthyService(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "sha256:aaa")
	f.resolver.digests["registry.example.com/web:latest"] = "sha256:bbb"
	f.health.verdicts["web"] = errors.New("container restarting")
	m := f.manager()

	report, err := m.SafeUpdate(context.Background(), "web")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	res := report.Results[0]

	require.Error(t, res.Err)
	assert.True(t, res.Reverted)
	assert.NoError(t, res.RevertErr)
	assert.Equal(t, "1.1", res.NewTag)

	mf := f.load(t)
	assert.Equal(t, "1.1", mf.Services["web"].CurrentTag)
	assert.Equal(t, "sha256:aaa", mf.Services["web"].CurrentDigest)
}

func TestSafeUpdate_ReportsFailedRevertDistinctly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "sha256:aaa")
	f.resolver.digests["registry.example.com/web:latest"] = "sha256:bbb"
	f.health.verdicts["web"] = errors.New("unhealthy")
	// The rollback pull of the previous version fails too.
	f.fetcher.fail["registry.example.com/web:1.1"] = errors.New("registry down")
	m := f.manager()

	report, err := m.SafeUpdate(context.Background(), "web")
	require.NoError(t, err)
	res := report.Results[0]
	require.Error(t, res.Err)
	require.Error(t, res.RevertErr)
	assert.False(t, res.Reverted)
	assert.False(t, report.OK())
}

func TestSafeUpdate_HealthyUpdateSticks(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.1", "sha256:aaa")
	f.resolver.digests["registry.example.com/web:latest"] = "sha256:bbb"
	m := f.manager()

	report, err := m.SafeUpdate(context.Background(), "web")
	require.NoError(t, err)
	require.True(t, report.OK())

	mf := f.load(t)
	assert.Equal(t, "latest", mf.Services["web"].CurrentTag)
	assert.Equal(t, "sha256:bbb", mf.Services["web"].CurrentDigest)
}

func TestSafeUpdate_RequiresHealthChecker(t *testing.T) {
	f := newFixture(t)
	proj := envfile.New(f.envPath, "STACK", f.cfg.Registry)
	m := NewManager(f.cfg, f.store, f.fetcher, f.resolver, proj, nil)

	_, err := m.SafeUpdate(context.Background(), "")
	require.Error(t, err)
}

func TestCheckUpdates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "web", "1.2", "")
	m := f.manager()

	statuses, err := m.CheckUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byName := map[string]UpdateStatus{}
	for _, st := range statuses {
		byName[st.Service] = st
	}
	assert.True(t, byName["web"].Tracked)
	assert.False(t, byName["web"].Mutable)
	assert.False(t, byName["api"].Tracked)
	assert.True(t, byName["api"].Mutable)
	assert.Equal(t, "latest", byName["api"].CurrentTag)
}

func TestBoundedHistoryThroughManager(t *testing.T) {
	f := newFixture(t)
	m := f.manager()

	tags := []string{"1.1", "1.2", "1.3", "1.4", "1.5", "1.6", "1.7"}
	for _, tag := range tags {
		f.resolver.digests["registry.example.com/web:"+tag] = "sha256:" + tag
		_, err := m.Set(context.Background(), "web", tag)
		require.NoError(t, err)
	}

	mf := f.load(t)
	require.Len(t, mf.History["web"], 5)
	assert.Equal(t, "1.7", mf.History["web"][0].Tag)
	assert.Equal(t, "1.3", mf.History["web"][4].Tag)
}
