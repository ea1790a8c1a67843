package project

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer"
	"github.com/uber/lsp-mcp/src/lspmcp/gateway/analyzer/analyzermock"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/fs/fsmock"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func identityFS(ctrl *gomock.Controller) *fsmock.MockBridgeFS {
	fs := fsmock.NewMockBridgeFS(ctrl)
	fs.EXPECT().Canonicalize(gomock.Any()).DoAndReturn(func(p string) (string, error) { return p, nil }).AnyTimes()
	fs.EXPECT().FileExists(gomock.Any()).Return(false, nil).AnyTimes()
	return fs
}

func provider(t *testing.T, values map[string]interface{}) config.Provider {
	p, err := config.NewStaticProvider(values)
	require.NoError(t, err)
	return p
}

func projectList(roots ...string) map[string]interface{} {
	var entries []interface{}
	for _, r := range roots {
		entries = append(entries, map[string]interface{}{"root": r})
	}
	return map[string]interface{}{"projects": entries}
}

func liveSession(ctrl *gomock.Controller) *analyzermock.MockSession {
	s := analyzermock.NewMockSession(ctrl)
	s.EXPECT().ID().Return(uuid.Must(uuid.NewV4())).AnyTimes()
	s.EXPECT().Err().Return(nil).AnyTimes()
	return s
}

func newTestRepository(t *testing.T, factory analyzer.Factory, respawn RespawnConfig, roots ...string) *repository {
	var projects []entity.Project
	for _, r := range roots {
		projects = append(projects, entity.Project{Root: r, Analyzer: entity.AnalyzerConfig{Command: "rust-analyzer"}})
	}
	return newRepository(projects, respawn, factory, zap.NewNop().Sugar(), tally.NewTestScope("testing", make(map[string]string, 0)))
}

func TestNew(t *testing.T) {
	t.Run("no projects", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		_, err := New(Params{
			Config:    provider(t, map[string]interface{}{}),
			Lifecycle: fxtest.NewLifecycle(t),
			Logger:    zap.NewNop().Sugar(),
			Stats:     tally.NewTestScope("testing", make(map[string]string, 0)),
			FS:        identityFS(ctrl),
			Factory:   analyzermock.NewMockFactory(ctrl),
		})
		assert.ErrorIs(t, err, bridgeerrors.ErrNoProjects)
	})

	t.Run("canonical roots are deduplicated and sorted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := fsmock.NewMockBridgeFS(ctrl)
		fs.EXPECT().Canonicalize("/work/b/").Return("/work/b", nil)
		fs.EXPECT().Canonicalize("/work/a").Return("/work/a", nil)
		fs.EXPECT().Canonicalize("/work/link-to-b").Return("/work/b", nil)
		fs.EXPECT().FileExists(gomock.Any()).Return(false, nil).Times(2)

		r, err := New(Params{
			Config:    provider(t, projectList("/work/b/", "/work/a", "/work/link-to-b")),
			Lifecycle: fxtest.NewLifecycle(t),
			Logger:    zap.NewNop().Sugar(),
			Stats:     tally.NewTestScope("testing", make(map[string]string, 0)),
			FS:        fs,
			Factory:   analyzermock.NewMockFactory(ctrl),
		})
		require.NoError(t, err)
		projects := r.Projects()
		require.Len(t, projects, 2)
		assert.Equal(t, "/work/a", projects[0].Root)
		assert.Equal(t, "/work/b", projects[1].Root)
		assert.Equal(t, "rust-analyzer", projects[0].Analyzer.Command)
		assert.Equal(t, "cargo", projects[0].Check.Command)
	})

	t.Run("override file", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := fsmock.NewMockBridgeFS(ctrl)
		fs.EXPECT().Canonicalize("/work/a").Return("/work/a", nil)
		fs.EXPECT().FileExists("/work/a/.lsp-mcp.yaml").Return(true, nil)
		fs.EXPECT().ReadFile("/work/a/.lsp-mcp.yaml").Return([]byte(
			"exclude: [generated/]\nanalyzer:\n  command: ra-nightly\n  args: [--log]\n"), nil)

		values := map[string]interface{}{
			"projects": []interface{}{
				map[string]interface{}{"root": "/work/a", "exclude": []interface{}{"target/"}},
			},
			"check": map[string]interface{}{"command": "cargo", "args": []interface{}{"clippy"}},
		}
		r, err := New(Params{
			Config:    provider(t, values),
			Lifecycle: fxtest.NewLifecycle(t),
			Logger:    zap.NewNop().Sugar(),
			Stats:     tally.NewTestScope("testing", make(map[string]string, 0)),
			FS:        fs,
			Factory:   analyzermock.NewMockFactory(ctrl),
		})
		require.NoError(t, err)
		p := r.Projects()[0]
		assert.Equal(t, []string{"target/", "generated/"}, p.Exclude)
		assert.Equal(t, entity.AnalyzerConfig{Command: "ra-nightly", Args: []string{"--log"}}, p.Analyzer)
		assert.Equal(t, []string{"clippy"}, p.Check.Args)
	})

	t.Run("malformed override file", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := fsmock.NewMockBridgeFS(ctrl)
		fs.EXPECT().Canonicalize("/work/a").Return("/work/a", nil)
		fs.EXPECT().FileExists("/work/a/.lsp-mcp.yaml").Return(true, nil)
		fs.EXPECT().ReadFile("/work/a/.lsp-mcp.yaml").Return([]byte("exclude: {"), nil)

		_, err := New(Params{
			Config:    provider(t, projectList("/work/a")),
			Lifecycle: fxtest.NewLifecycle(t),
			Logger:    zap.NewNop().Sugar(),
			Stats:     tally.NewTestScope("testing", make(map[string]string, 0)),
			FS:        fs,
			Factory:   analyzermock.NewMockFactory(ctrl),
		})
		assert.ErrorContains(t, err, ".lsp-mcp.yaml")
	})

	t.Run("missing root", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := fsmock.NewMockBridgeFS(ctrl)
		fs.EXPECT().Canonicalize("/nope").Return("", errors.New("no such file or directory"))

		_, err := New(Params{
			Config:    provider(t, projectList("/nope")),
			Lifecycle: fxtest.NewLifecycle(t),
			Logger:    zap.NewNop().Sugar(),
			Stats:     tally.NewTestScope("testing", make(map[string]string, 0)),
			FS:        fs,
			Factory:   analyzermock.NewMockFactory(ctrl),
		})
		assert.ErrorContains(t, err, "/nope")
	})
}

func TestResolve(t *testing.T) {
	r := newTestRepository(t, nil, RespawnConfig{Interval: time.Second, Burst: 1}, "/work/outer", "/work/outer/inner", "/work/other")

	tests := []struct {
		name     string
		path     string
		wantRoot string
		wantErr  bool
	}{
		{name: "longest root wins", path: "/work/outer/inner/src/lib.rs", wantRoot: "/work/outer/inner"},
		{name: "outer project", path: "/work/outer/src/lib.rs", wantRoot: "/work/outer"},
		{name: "root itself", path: "/work/other", wantRoot: "/work/other"},
		{name: "shared prefix is not containment", path: "/work/outer2/x.rs", wantErr: true},
		{name: "relative with several projects", path: "src/lib.rs", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Resolve(tt.path)
			if tt.wantErr {
				assert.True(t, bridgeerrors.IsProjectNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoot, p.Root)
		})
	}

	single := newTestRepository(t, nil, RespawnConfig{Interval: time.Second, Burst: 1}, "/work/only")
	p, err := single.Resolve("src/main.rs")
	require.NoError(t, err)
	assert.Equal(t, "/work/only", p.Root)
}

func TestSession(t *testing.T) {
	respawn := RespawnConfig{Interval: time.Hour, Burst: 2}

	t.Run("concurrent callers share one spawn", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		factory := analyzermock.NewMockFactory(ctrl)
		s := liveSession(ctrl)
		release := make(chan struct{})
		factory.EXPECT().Start(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, entity.Project) (analyzer.Session, error) {
			<-release
			return s, nil
		}).Times(1)

		r := newTestRepository(t, factory, respawn, "/work/a")
		var spawned int
		r.OnSpawn(func(analyzer.Session) { spawned++ })

		var wg sync.WaitGroup
		results := make([]analyzer.Session, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got, err := r.Session(context.Background(), "/work/a")
				assert.NoError(t, err)
				results[i] = got
			}(i)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		for _, got := range results {
			assert.Equal(t, s, got)
		}
		assert.Equal(t, 1, spawned)

		current, ok := r.Current("/work/a")
		assert.True(t, ok)
		assert.Equal(t, s, current)
	})

	t.Run("dead session is replaced", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		factory := analyzermock.NewMockFactory(ctrl)

		dead := analyzermock.NewMockSession(ctrl)
		dead.EXPECT().ID().Return(uuid.Must(uuid.NewV4())).AnyTimes()
		var died bool
		dead.EXPECT().Err().DoAndReturn(func() error {
			if died {
				return &bridgeerrors.SessionDeadError{Project: "/work/a"}
			}
			return nil
		}).AnyTimes()
		fresh := liveSession(ctrl)

		gomock.InOrder(
			factory.EXPECT().Start(gomock.Any(), gomock.Any()).Return(dead, nil),
			factory.EXPECT().Start(gomock.Any(), gomock.Any()).Return(fresh, nil),
		)

		scope := tally.NewTestScope("testing", make(map[string]string, 0))
		r := newRepository([]entity.Project{{Root: "/work/a"}}, respawn, factory, zap.NewNop().Sugar(), scope)

		got, err := r.Session(context.Background(), "/work/a")
		require.NoError(t, err)
		assert.Equal(t, dead, got)

		died = true
		_, ok := r.Current("/work/a")
		assert.False(t, ok)

		got, err = r.Session(context.Background(), "/work/a")
		require.NoError(t, err)
		assert.Equal(t, fresh, got)
		assert.EqualValues(t, 1, scope.Snapshot().Counters()["testing.projects.respawns+"].Value())
	})

	t.Run("spawn failure is not retried", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		factory := analyzermock.NewMockFactory(ctrl)
		spawnErr := &bridgeerrors.SpawnFailedError{Command: "rust-analyzer", Err: errors.New("executable file not found")}
		factory.EXPECT().Start(gomock.Any(), gomock.Any()).Return(nil, spawnErr).Times(1)

		r := newTestRepository(t, factory, respawn, "/work/a")
		for i := 0; i < 3; i++ {
			_, err := r.Session(context.Background(), "/work/a")
			assert.True(t, bridgeerrors.IsSpawnFailed(err))
		}
	})

	t.Run("respawn is throttled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		factory := analyzermock.NewMockFactory(ctrl)
		crashing := analyzermock.NewMockSession(ctrl)
		crashing.EXPECT().ID().Return(uuid.Must(uuid.NewV4())).AnyTimes()
		crashing.EXPECT().Err().Return(&bridgeerrors.SessionDeadError{Project: "/work/a"}).AnyTimes()
		factory.EXPECT().Start(gomock.Any(), gomock.Any()).Return(crashing, nil).Times(2)

		r := newTestRepository(t, factory, respawn, "/work/a")
		for i := 0; i < 2; i++ {
			_, err := r.Session(context.Background(), "/work/a")
			require.NoError(t, err)
		}
		_, err := r.Session(context.Background(), "/work/a")
		require.Error(t, err)
		assert.True(t, bridgeerrors.IsSessionDead(err))
		assert.Contains(t, err.Error(), "restarted too often")
	})

	t.Run("unknown project", func(t *testing.T) {
		r := newTestRepository(t, nil, respawn, "/work/a")
		_, err := r.Session(context.Background(), "/work/b")
		assert.True(t, bridgeerrors.IsProjectNotFound(err))
	})

	t.Run("caller gives up while spawning", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		factory := analyzermock.NewMockFactory(ctrl)
		release := make(chan struct{})
		factory.EXPECT().Start(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, entity.Project) (analyzer.Session, error) {
			<-release
			return nil, errors.New("interrupted")
		})
		defer close(release)

		r := newTestRepository(t, factory, respawn, "/work/a")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := r.Session(ctx, "/work/a")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestUnregister(t *testing.T) {
	ctrl := gomock.NewController(t)
	factory := analyzermock.NewMockFactory(ctrl)
	s := liveSession(ctrl)
	factory.EXPECT().Start(gomock.Any(), gomock.Any()).Return(s, nil)

	r := newTestRepository(t, factory, RespawnConfig{Interval: time.Second, Burst: 1}, "/work/a", "/work/b")
	var (
		mu      sync.Mutex
		torn    []string
		current = make(map[string]analyzer.Session)
		spawned = make(map[string]error)
	)
	r.OnUnregister(func(ctx context.Context, p entity.Project) error {
		s, _ := r.Current(p.Root)
		var err error
		if s == nil {
			_, err = r.Session(ctx, p.Root)
		}
		mu.Lock()
		defer mu.Unlock()
		torn = append(torn, p.Root)
		current[p.Root] = s
		spawned[p.Root] = err
		return nil
	})

	_, err := r.Session(context.Background(), "/work/a")
	require.NoError(t, err)

	s.EXPECT().Shutdown(gomock.Any()).Return(nil)
	require.NoError(t, r.Unregister(context.Background(), "/work/a"))
	assert.Equal(t, []string{"/work/a"}, torn)
	assert.Len(t, r.Projects(), 1)
	// Hooks still see the session they have to clean up.
	assert.Equal(t, s, current["/work/a"])
	_, ok := r.Current("/work/a")
	assert.False(t, ok)

	assert.True(t, bridgeerrors.IsProjectNotFound(r.Unregister(context.Background(), "/work/a")))

	require.NoError(t, r.shutdownAll(context.Background()))
	assert.Empty(t, r.Projects())
	assert.Equal(t, []string{"/work/a", "/work/b"}, torn)
	// A project being torn down does not start an analyzer.
	assert.Nil(t, current["/work/b"])
	assert.True(t, bridgeerrors.IsSessionDead(spawned["/work/b"]))
	assert.ErrorIs(t, spawned["/work/b"], bridgeerrors.ErrSessionClosed)
}

func TestShutdownCombinesErrors(t *testing.T) {
	r := newTestRepository(t, nil, RespawnConfig{Interval: time.Second, Burst: 1}, "/work/a", "/work/b")
	r.OnUnregister(func(_ context.Context, p entity.Project) error {
		return errors.New("flush failed for " + p.Name())
	})

	err := r.shutdownAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed for a")
	assert.Contains(t, err.Error(), "flush failed for b")
}
