package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/tenantdb/internal/datasource"
	"github.com/wolfeidau/tenantdb/internal/jta"
	"github.com/wolfeidau/tenantdb/internal/models"
)

type fakeDB struct {
	mu      sync.Mutex
	execs   []string
	commits int
	execErr error
}

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.execErr != nil {
		return pgconn.CommandTag{}, d.execErr
	}
	d.execs = append(d.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (d *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported")
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: d}, nil
}

func (d *fakeDB) Execs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.execs...)
}

// fakeTx implements the pgx.Tx methods the package uses.
type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeHandle struct {
	id      string
	pooled  bool
	db      *fakeDB
	pingErr error
	closed  atomic.Bool
	onClose func()
}

func newFakeHandle(id string, pooled bool) *fakeHandle {
	return &fakeHandle{id: id, pooled: pooled, db: &fakeDB{}}
}

func (h *fakeHandle) DB() datasource.Querier         { return h.db }
func (h *fakeHandle) Ping(ctx context.Context) error { return h.pingErr }
func (h *fakeHandle) Pooled() bool                   { return h.pooled }
func (h *fakeHandle) DataSourceID() string           { return h.id }

func (h *fakeHandle) Close(ctx context.Context) error {
	if h.closed.CompareAndSwap(false, true) && h.onClose != nil {
		h.onClose()
	}
	return nil
}

type fakeProvisioner struct {
	mu          sync.Mutex
	pools       map[string]*fakeHandle
	poolsOpened atomic.Int32
	openSingles atomic.Int32
	released    []string
	noSingle    bool
	singleErr   error
	pingErr     error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{pools: make(map[string]*fakeHandle)}
}

func (p *fakeProvisioner) GetOrCreatePooled(ctx context.Context, org *models.Organization, info *models.DataSourceInfo) (datasource.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.pools[info.ID]; ok {
		return h, nil
	}
	p.poolsOpened.Add(1)
	h := newFakeHandle(info.ID, true)
	p.pools[info.ID] = h
	return h, nil
}

func (p *fakeProvisioner) CreateSingle(ctx context.Context, org *models.Organization) (datasource.Handle, error) {
	if p.singleErr != nil {
		return nil, p.singleErr
	}
	if p.noSingle {
		return nil, nil
	}
	p.openSingles.Add(1)
	h := newFakeHandle("single-"+org.OrgID, false)
	h.pingErr = p.pingErr
	h.onClose = func() { p.openSingles.Add(-1) }
	return h, nil
}

func (p *fakeProvisioner) Release(ctx context.Context, org *models.Organization) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, org.OrgID)
	return nil
}

func (p *fakeProvisioner) Released() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.released...)
}

type fakeEngine struct {
	builds  atomic.Int32
	delay   time.Duration
	err     error
	mu      sync.Mutex
	configs []*BuildConfig
	// hook runs inside Build and can hold it open.
	hook func(ctx context.Context) error
}

func (e *fakeEngine) Build(ctx context.Context, cfg *BuildConfig) (Mapping, error) {
	e.builds.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.hook != nil {
		if err := e.hook(ctx); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	e.configs = append(e.configs, cfg)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return &compiledMapping{entities: cfg.Packages}, nil
}

func (e *fakeEngine) LastConfig() *BuildConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.configs) == 0 {
		return nil
	}
	return e.configs[len(e.configs)-1]
}

type fakeScripts struct {
	runs atomic.Int32
	err  error
	tags []string
	mu   sync.Mutex
}

func (s *fakeScripts) Run(ctx context.Context, tenantID string, db datasource.Querier, scriptPath, tag string) error {
	s.runs.Add(1)
	s.mu.Lock()
	s.tags = append(s.tags, tag)
	s.mu.Unlock()
	return s.err
}

type fakeAssigner struct {
	info    *models.DataSourceInfo
	err     error
	assigns atomic.Int32
}

func (a *fakeAssigner) Assign(ctx context.Context, org *models.Organization) (*models.DataSourceInfo, error) {
	a.assigns.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.info, nil
}

func newTestFactory(engine Engine) *Factory {
	return NewFactory(engine, jta.NewResolver(jta.Environment{}, nil), FactoryConfig{
		PackagesToScan:       "security,notify",
		CustomPackagesToScan: "billing",
	})
}

// gatedBuild returns an engine hook that signals started when a build begins and
// blocks it until proceed is closed or the build context ends.
func gatedBuild() (hook func(ctx context.Context) error, started <-chan struct{}, proceed chan struct{}) {
	s := make(chan struct{})
	proceed = make(chan struct{})
	var once sync.Once
	hook = func(ctx context.Context) error {
		once.Do(func() { close(s) })
		select {
		case <-proceed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return hook, s, proceed
}
