// Package worker implements the Worker Runtime (spec.md §4.3): the single
// shared state machine, retry wrapper, tab-reset protocol, and upload
// sub-protocol that every BankAdapter runs inside. Adapters contain only
// portal navigation; everything else lives here.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/messenger"
)

const (
	maxRetries          = 3
	retrySleep          = 5 * time.Second
	steadySleep         = 60 * time.Second
	maxConsecutiveOuter = 5
	uploadMaxAttempts   = 5
	uploadRetryInterval = 2 * time.Second
	joinPollInterval    = 1 * time.Second
)

// Worker drives one alias's BankAdapter through Init → LoggingIn → Steady →
// Recovering → Stopped. It runs on its own goroutine backed by a dedicated
// OS thread, since browser drivers are not safe to share across threads.
type Worker struct {
	alias   domain.Alias
	bank    domain.BankAdapter
	session domain.BrowserSession
	sink    domain.StatementSink
	solver  domain.CaptchaSolver
	msgr    *messenger.Messenger
	inbox   *domain.Inboxes

	mu           sync.RWMutex
	state        domain.WorkerState
	cred         domain.Credential
	lastBalance  string
	lastUploadAt time.Time

	mainTab domain.TabID

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Worker in StateInit. Call Run in its own goroutine to start
// the state machine.
func New(alias domain.Alias, bank domain.BankAdapter, session domain.BrowserSession, sink domain.StatementSink, solver domain.CaptchaSolver, msgr *messenger.Messenger, cred domain.Credential) *Worker {
	return &Worker{
		alias:   alias,
		bank:    bank,
		session: session,
		sink:    sink,
		solver:  solver,
		msgr:    msgr,
		inbox:   &domain.Inboxes{},
		state:   domain.StateInit,
		cred:    cred,
		done:    make(chan struct{}),
	}
}

func (w *Worker) Alias() domain.Alias { return w.alias }

func (w *Worker) BankLabel() string { return w.bank.BankLabel() }

func (w *Worker) State() domain.WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s domain.WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	observability.RecordStateTransition(string(w.alias), s.String())
}

func (w *Worker) LastBalance() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastBalance
}

func (w *Worker) LastUploadAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastUploadAt
}

func (w *Worker) Credential() domain.Credential {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cred
}

// PatchCredentialField applies an EditCredential hot-swap in place; it takes
// full effect the next time the Worker enters LoggingIn (spec.md §4.4).
func (w *Worker) PatchCredentialField(field, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch field {
	case "loginId":
		w.cred.LoginID = value
	case "userId":
		w.cred.UserID = value
	case "password":
		w.cred.Password = value
	case "accountNumber":
		w.cred.AccountNumber = value
	}
}

// PutCaptcha and PutOTP deliver a broadcast code to this worker's inbox; it
// is only consumed by a waiter currently blocked on it.
func (w *Worker) PutCaptcha(text string) { w.inbox.PutCaptcha(text) }
func (w *Worker) PutOTP(text string)     { w.inbox.PutOTP(text) }

// Done is closed once Run returns, for the Registry's join-with-deadline.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Stop fires stopSignal (by canceling Run's context) and eagerly tears down
// the browser session to interrupt any in-flight driver call, per spec.md
// §5's cancellation semantics.
func (w *Worker) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	_ = w.session.Close(ctx)
}

// Run executes the full state machine. It blocks until stopped or it fails
// permanently; call it in its own goroutine.
func (w *Worker) Run(parent context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	defer cancel()

	consecutiveOuterFailures := 0

	for {
		if ctx.Err() != nil {
			w.setState(domain.StateStopped)
			w.emit(ctx, domain.KindStop, "stopped")
			return
		}

		w.setState(domain.StateLoggingIn)
		tab, err := w.openMainTab(ctx)
		if err != nil {
			w.setState(domain.StateStopped)
			w.emit(ctx, domain.KindStop, fmt.Sprintf("cannot open tab: %v", err))
			return
		}
		w.mainTab = tab

		if err := w.retryOp(ctx, "Login", func(ctx context.Context) error {
			return w.bank.Login(ctx, w.Credential(), w.session, w.mainTab, w.inbox, w.solver)
		}); err != nil {
			if ctx.Err() != nil {
				w.setState(domain.StateStopped)
				return
			}
			consecutiveOuterFailures++
			if consecutiveOuterFailures > maxConsecutiveOuter {
				w.setState(domain.StateStopped)
				w.emit(ctx, domain.KindStop, "too many consecutive failures during login")
				return
			}
			continue
		}

		w.setState(domain.StateSteady)
		w.emit(ctx, domain.KindStart, "logged in, entering steady loop")

		for {
			if ctx.Err() != nil {
				w.setState(domain.StateStopped)
				w.emit(ctx, domain.KindStop, "stopped")
				return
			}

			if detector, ok := w.bank.(domain.LogoutDetector); ok && detector.DetectLoggedOut(ctx, w.session, w.mainTab) {
				w.emit(ctx, domain.KindInfo, "logged-out detected, resetting")
				break
			}

			filePath, err := w.runFetchStatement(ctx)
			if err != nil {
				if errCausesLogout(err) {
					w.emit(ctx, domain.KindInfo, "logged-out detected, resetting")
					break
				}
				consecutiveOuterFailures++
				if consecutiveOuterFailures > maxConsecutiveOuter {
					w.setState(domain.StateStopped)
					w.emit(ctx, domain.KindStop, "too many consecutive failures")
					return
				}
				break
			}
			consecutiveOuterFailures = 0

			if err := w.runUploadSubProtocol(ctx, filePath); err != nil {
				// final failure bubbles to the outer loop; a full reset may follow.
				break
			}

			if balance, err := retryOpResult(w, ctx, "ReadBalance", func(ctx context.Context) (string, error) {
				return w.bank.ReadBalance(ctx, w.Credential(), w.session, w.mainTab)
			}); err == nil {
				w.mu.Lock()
				w.lastBalance = balance
				w.mu.Unlock()
			}

			if !w.sleepCancelable(ctx, steadySleep) {
				w.setState(domain.StateStopped)
				w.emit(ctx, domain.KindStop, "stopped")
				return
			}
		}

		// Tab-reset protocol before re-entering LoggingIn.
		w.setState(domain.StateRecovering)
		if err := w.resetTabs(ctx); err != nil {
			w.setState(domain.StateStopped)
			w.emit(ctx, domain.KindStop, "tab reset failed, cannot produce new tab")
			return
		}
	}
}

func errCausesLogout(err error) bool {
	return err != nil && errIs(err, domain.ErrLoggedOut)
}

func errIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (w *Worker) openMainTab(ctx context.Context) (domain.TabID, error) {
	return w.session.NewTab(ctx)
}

// resetTabs implements the tab-reset protocol (spec.md §4.3): open a fresh
// blank tab, close every previously-known tab, clear the inboxes.
func (w *Worker) resetTabs(ctx context.Context) error {
	observability.RecordTabReset(string(w.alias))
	newTab, err := w.session.NewTab(ctx)
	if err != nil {
		return err
	}
	if err := w.session.CloseAllExcept(ctx, newTab); err != nil {
		slog.Warn("worker: tab cleanup during reset failed", "alias", w.alias, "err", err)
	}
	w.mainTab = newTab
	w.inbox.Clear()
	return nil
}

func (w *Worker) runFetchStatement(ctx context.Context) (string, error) {
	return retryOpResult(w, ctx, "FetchStatement", func(ctx context.Context) (string, error) {
		return w.bank.FetchStatement(ctx, w.Credential(), w.session, w.mainTab)
	})
}

// runUploadSubProtocol implements spec.md §4.3's upload sub-protocol.
func (w *Worker) runUploadSubProtocol(ctx context.Context, filePath string) error {
	uploadTab, err := w.session.NewTab(ctx)
	if err != nil {
		return err
	}

	cred := w.Credential()
	attempt := 0
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(uploadRetryInterval), uploadMaxAttempts-1), ctx)
	lastErr := backoff.Retry(func() error {
		attempt++
		err := w.sink.Upload(ctx, w.bank.BankLabel(), cred.AccountNumber, filePath)
		if err == nil {
			observability.RecordUpload(string(w.alias), "ok")
			return nil
		}
		observability.RecordUpload(string(w.alias), "failed")
		w.emit(ctx, domain.KindError, fmt.Sprintf("upload attempt %d/%d failed: %v", attempt, uploadMaxAttempts, err))
		return err
	}, bo)

	_ = w.session.CloseTab(ctx, uploadTab)

	if lastErr != nil {
		w.emit(ctx, domain.KindError, fmt.Sprintf("upload failed after %d attempts: %v", uploadMaxAttempts, lastErr))
		return fmt.Errorf("op=Worker.runUploadSubProtocol alias=%s: %w", w.alias, domain.ErrUploadFailed)
	}

	_ = w.session.CloseAllExcept(ctx, w.mainTab)
	w.mu.Lock()
	w.lastUploadAt = time.Now()
	w.mu.Unlock()
	w.emit(ctx, domain.KindUploadOK, "statement uploaded")
	return nil
}

// retryOp runs fn up to maxRetries times with a fixed 5s sleep between
// attempts, a full-tabs screenshot, and an ERROR notification on each
// failure — the fixed-schedule retry spec.md §4.3 mandates, built on
// cenkalti/backoff/v4's WithMaxRetries+NewConstantBackOff idiom (the same
// library internal/captcha/solver.go drives via backoff.Retry).
func (w *Worker) retryOp(ctx context.Context, opName string, fn func(context.Context) error) error {
	_, err := retryOpResult(w, ctx, opName, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// retryOpResult is a free function, not a method, because Go methods cannot
// declare their own type parameters. The result is captured by the operation
// closure since backoff.Retry only carries an error back out.
func retryOpResult[T any](w *Worker, ctx context.Context, opName string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retrySleep), maxRetries-1), ctx)
	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		r, err := fn(ctx)
		if err != nil {
			observability.RecordRetryAttempt(opName, "failed")
			w.emitWithScreenshot(ctx, opName, err)
			return err
		}
		observability.RecordRetryAttempt(opName, "ok")
		result = r
		return nil
	}, bo)
	return result, err
}

func (w *Worker) emitWithScreenshot(ctx context.Context, opName string, cause error) {
	var photos [][]byte
	if tabs, err := w.session.Tabs(ctx); err == nil {
		for _, tab := range tabs {
			if shot, err := w.session.Screenshot(ctx, tab, ""); err == nil {
				photos = append(photos, shot)
			}
		}
	}
	w.msgr.Send(ctx, domain.Message{
		Kind:      domain.KindError,
		Alias:     w.alias,
		Text:      fmt.Sprintf("%s: %v", opName, cause),
		Photos:    photos,
		CreatedAt: time.Now(),
	})
}

func (w *Worker) emit(ctx context.Context, kind domain.MessageKind, text string) {
	w.msgr.Send(ctx, domain.Message{
		Kind:      kind,
		Alias:     w.alias,
		Text:      text,
		CreatedAt: time.Now(),
	})
}

// ScreenshotAllTabs implements the StatusScreenshot command.
func (w *Worker) ScreenshotAllTabs(ctx context.Context) ([][]byte, error) {
	tabs, err := w.session.Tabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=Worker.ScreenshotAllTabs alias=%s: %w", w.alias, err)
	}
	var photos [][]byte
	for _, tab := range tabs {
		shot, err := w.session.Screenshot(ctx, tab, "")
		if err != nil {
			continue
		}
		photos = append(photos, shot)
	}
	return photos, nil
}

// sleepCancelable sleeps for d in 1s increments, re-checking ctx.Done() each
// tick per spec.md §5's "at least once per second" cancellation rule.
// Returns false if canceled before the full duration elapsed.
func (w *Worker) sleepCancelable(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		step := joinPollInterval
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
	}
	return true
}
