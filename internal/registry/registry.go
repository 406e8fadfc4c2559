// Package registry implements the Supervisor/Registry (spec.md §5): the
// mutex-guarded alias → Worker map and the lifecycle operations
// (StartWorker, StopWorker, StopAll) every command in internal/command
// is ultimately built on.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/fairyhunter13/autobank-supervisor/internal/bankadapter"
	"github.com/fairyhunter13/autobank-supervisor/internal/browser"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/messenger"
	"github.com/fairyhunter13/autobank-supervisor/internal/sink"
	"github.com/fairyhunter13/autobank-supervisor/internal/worker"
	"golang.org/x/sync/errgroup"
)

const joinDeadline = 5 * time.Second

// runningWorker pairs a Worker with its goroutine's cancel func and the
// session it owns, so StopWorker can tear both down in order.
type runningWorker struct {
	w       workerHandle
	cancel  context.CancelFunc
	session domain.BrowserSession
}

// workerHandle is the subset of *worker.Worker the Registry depends on; kept
// as an interface so tests can substitute a fake without importing the
// browser-driving worker package's heavier fakes.
type workerHandle interface {
	Alias() domain.Alias
	BankLabel() string
	State() domain.WorkerState
	LastBalance() string
	LastUploadAt() time.Time
	Credential() domain.Credential
	PatchCredentialField(field, value string)
	PutCaptcha(text string)
	PutOTP(text string)
	ScreenshotAllTabs(ctx context.Context) ([][]byte, error)
	Stop(ctx context.Context)
	Done() <-chan struct{}
	Run(ctx context.Context)
}

// WorkerFactory builds the workerHandle (and the BrowserSession it drives)
// for one credential. Production wiring is NewProductionFactory; tests
// inject a fake.
type WorkerFactory func(ctx context.Context, cred domain.Credential, deps Deps, dateRange *DateRange) (workerHandle, domain.BrowserSession, error)

// DateRange is the optional /run "from D to D" override; only the KGB
// adapter honors it (spec.md §6.3), via domain.DateRangeOverride.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Deps bundles the Registry's process-wide collaborators, per spec.md §9's
// Design Notes (single Messenger, single CredentialStore instance, shared
// per-bank circuit breakers — none of it a package-level singleton).
type Deps struct {
	CredStore   domain.CredentialStore
	Messenger   *messenger.Messenger
	Solver      domain.CaptchaSolver
	UploadURL   string
	ProfileRoot string

	breakersMu sync.Mutex
	breakers   map[string]*observability.CircuitBreaker
}

func (d *Deps) breakerFor(bankLabel string) *observability.CircuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	if d.breakers == nil {
		d.breakers = map[string]*observability.CircuitBreaker{}
	}
	if b, ok := d.breakers[bankLabel]; ok {
		return b
	}
	b := observability.NewCircuitBreaker(bankLabel, 5, 30*time.Second)
	d.breakers[bankLabel] = b
	return b
}

// Registry owns the live alias → Worker map, enforcing invariant I1 (at most
// one running Worker per alias).
type Registry struct {
	deps    Deps
	factory WorkerFactory

	mu      sync.Mutex
	workers map[domain.Alias]*runningWorker
}

// New builds a Registry. factory is nil in production, which selects
// NewProductionFactory(); tests pass a fake factory directly.
func New(deps Deps, factory WorkerFactory) *Registry {
	if factory == nil {
		factory = NewProductionFactory()
	}
	return &Registry{
		deps:    deps,
		factory: factory,
		workers: map[domain.Alias]*runningWorker{},
	}
}

// NewProductionFactory wires a real browser.Session, bankadapter.BankAdapter,
// and sink.Client into a *worker.Worker for the given credential.
func NewProductionFactory() WorkerFactory {
	return func(ctx context.Context, cred domain.Credential, deps Deps, dateRange *DateRange) (workerHandle, domain.BrowserSession, error) {
		bank, err := bankadapter.NewForCredential(cred)
		if err != nil {
			return nil, nil, err
		}
		if dateRange != nil {
			if override, ok := bank.(domain.DateRangeOverride); ok {
				override.SetDateRange(dateRange.From, dateRange.To)
			}
		}

		profileDir := filepath.Join(deps.ProfileRoot, string(cred.Alias), "profile")
		downloadDir := filepath.Join(deps.ProfileRoot, string(cred.Alias), "downloads")
		session, err := browser.NewSession(ctx, cred.Alias, profileDir, downloadDir)
		if err != nil {
			return nil, nil, fmt.Errorf("op=NewProductionFactory alias=%s: %w", cred.Alias, err)
		}

		breaker := deps.breakerFor(bank.BankLabel())
		sinkClient := sink.NewClient(deps.UploadURL, breaker)

		w := worker.New(cred.Alias, bank, session, sinkClient, deps.Solver, deps.Messenger, cred)
		return w, session, nil
	}
}

// StartWorker implements the /run command (spec.md §6.3, invariant I1):
// refuses to start a second Worker for an alias already running.
func (r *Registry) StartWorker(ctx context.Context, alias domain.Alias) error {
	return r.StartWorkerWithDateRange(ctx, alias, nil)
}

// StartWorkerWithDateRange is StartWorker plus the optional "from D to D"
// override /run accepts; only the KGB adapter honors a non-nil dateRange.
func (r *Registry) StartWorkerWithDateRange(ctx context.Context, alias domain.Alias, dateRange *DateRange) error {
	creds, err := r.deps.CredStore.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("op=Registry.StartWorker alias=%s: %w", alias, err)
	}
	var cred domain.Credential
	var found bool
	for _, c := range creds {
		if c.Alias == alias {
			cred = c
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("op=Registry.StartWorker alias=%s: %w", alias, domain.ErrAliasNotFound)
	}

	r.mu.Lock()
	if existing, ok := r.workers[alias]; ok && existing.w.State().IsAlive() {
		r.mu.Unlock()
		return fmt.Errorf("op=Registry.StartWorker alias=%s: %w", alias, domain.ErrAliasAlreadyRunning)
	}
	r.mu.Unlock()

	handle, session, err := r.factory(ctx, cred, r.deps, dateRange)
	if err != nil {
		return fmt.Errorf("op=Registry.StartWorker alias=%s: %w", alias, err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	rw := &runningWorker{w: handle, cancel: cancel, session: session}

	r.mu.Lock()
	r.workers[alias] = rw
	r.mu.Unlock()

	go handle.Run(workerCtx)
	return nil
}

// StopWorker implements /stop: cancels the Worker's context, closes its
// session, and waits up to joinDeadline before force-removing the entry
// (invariant I2).
func (r *Registry) StopWorker(ctx context.Context, alias domain.Alias) error {
	r.mu.Lock()
	rw, ok := r.workers[alias]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("op=Registry.StopWorker alias=%s: %w", alias, domain.ErrNotRunning)
	}

	rw.w.Stop(ctx)

	select {
	case <-rw.w.Done():
	case <-time.After(joinDeadline):
		rw.cancel()
	}

	r.mu.Lock()
	delete(r.workers, alias)
	r.mu.Unlock()
	return nil
}

// StopAll implements /stopall: stops every running Worker in parallel via
// errgroup, respecting each one's own joinDeadline.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	aliases := make([]domain.Alias, 0, len(r.workers))
	for a := range r.workers {
		aliases = append(aliases, a)
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, alias := range aliases {
		alias := alias
		g.Go(func() error {
			return r.StopWorker(gctx, alias)
		})
	}
	return g.Wait()
}

// WorkerInfo is a point-in-time snapshot of one running Worker, for the
// command layer's /running, /active, and /balance rendering.
type WorkerInfo struct {
	Alias        domain.Alias
	BankLabel    string
	State        domain.WorkerState
	LastBalance  string
	LastUploadAt time.Time
}

// RunningInfo lists every live Worker with its bank label, state, balance
// and last upload time; /running, /active and /balance render from it.
func (r *Registry) RunningInfo() []WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []WorkerInfo
	for a, rw := range r.workers {
		if !rw.w.State().IsAlive() {
			continue
		}
		out = append(out, WorkerInfo{
			Alias:        a,
			BankLabel:    rw.w.BankLabel(),
			State:        rw.w.State(),
			LastBalance:  rw.w.LastBalance(),
			LastUploadAt: rw.w.LastUploadAt(),
		})
	}
	return out
}

// ListRunning returns the aliases whose Worker is alive; the Balance
// Monitor iterates over it on every tick.
func (r *Registry) ListRunning() []domain.Alias {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Alias
	for a, rw := range r.workers {
		if rw.w.State().IsAlive() {
			out = append(out, a)
		}
	}
	return out
}

// ListActive returns the aliases whose Worker is in StateSteady.
func (r *Registry) ListActive() []domain.Alias {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Alias
	for a, rw := range r.workers {
		if rw.w.State() == domain.StateSteady {
			out = append(out, a)
		}
	}
	return out
}

// QueryBalance returns one tracked alias's last-read balance string and last
// upload time; the Balance Monitor reads balances through it.
func (r *Registry) QueryBalance(alias domain.Alias) (string, time.Time, error) {
	r.mu.Lock()
	rw, ok := r.workers[alias]
	r.mu.Unlock()
	if !ok {
		return "", time.Time{}, fmt.Errorf("op=Registry.QueryBalance alias=%s: %w", alias, domain.ErrNotRunning)
	}
	return rw.w.LastBalance(), rw.w.LastUploadAt(), nil
}

// StatusScreenshot implements /status <alias>.
func (r *Registry) StatusScreenshot(ctx context.Context, alias domain.Alias) ([][]byte, error) {
	r.mu.Lock()
	rw, ok := r.workers[alias]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("op=Registry.StatusScreenshot alias=%s: %w", alias, domain.ErrNotRunning)
	}
	return rw.w.ScreenshotAllTabs(ctx)
}

// EditCredential implements /edit: patches a running Worker's in-flight
// credential copy (if alive) and persists the change to the CredentialStore.
func (r *Registry) EditCredential(ctx context.Context, alias domain.Alias, field, value string) (domain.Credential, error) {
	cred, err := r.deps.CredStore.Update(ctx, alias, field, value)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("op=Registry.EditCredential alias=%s: %w", alias, err)
	}

	r.mu.Lock()
	rw, ok := r.workers[alias]
	r.mu.Unlock()
	if ok {
		rw.w.PatchCredentialField(field, value)
	}
	return cred, nil
}

// AddCredential implements /add: appends a brand-new alias to the store.
func (r *Registry) AddCredential(ctx context.Context, cred domain.Credential) error {
	if err := r.deps.CredStore.Append(ctx, cred); err != nil {
		return fmt.Errorf("op=Registry.AddCredential alias=%s: %w", cred.Alias, err)
	}
	return nil
}

// BroadcastCode delivers an inbound CAPTCHA/OTP text to every live Worker's
// inbox; only a Worker currently blocked on it will consume it (spec.md
// §4.6's broadcast rule — TakeCaptcha/TakeOTP are naturally consume-once).
func (r *Registry) BroadcastCode(isCaptcha bool, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rw := range r.workers {
		if !rw.w.State().IsAlive() {
			continue
		}
		if isCaptcha {
			rw.w.PutCaptcha(text)
		} else {
			rw.w.PutOTP(text)
		}
	}
}

// DownloadDir returns the on-disk download directory convention every
// Worker's BrowserSession is constructed with, for the /file command.
func (r *Registry) DownloadDir(alias domain.Alias) string {
	return filepath.Join(r.deps.ProfileRoot, string(alias), "downloads")
}

// Aliases returns every alias known to the CredentialStore (for /list).
func (r *Registry) Aliases(ctx context.Context) ([]domain.Credential, error) {
	return r.deps.CredStore.LoadAll(ctx)
}
