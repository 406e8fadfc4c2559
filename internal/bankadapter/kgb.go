package bankadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// KGBAdapter drives the Kerala Gramin Bank net-banking portal. Uses the 6am
// cutover per spec.md §9 Open Questions, and is the one adapter that accepts
// a caller-supplied date range override (spec.md §4.2), set from
// Registry.StartWorkerWithDateRange's optional dateRange argument.
type KGBAdapter struct {
	mu       sync.Mutex
	override *dateRange
}

type dateRange struct {
	from, to time.Time
}

func NewKGBAdapter() *KGBAdapter { return &KGBAdapter{} }

func (a *KGBAdapter) BankLabel() string { return SinkLabel(LabelKGB) }

// SetDateRange installs an override bypassing the default date window
// policy for the next FetchStatement call. Implements domain.DateRangeOverride.
func (a *KGBAdapter) SetDateRange(from, to time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.override = &dateRange{from: from, to: to}
}

func (a *KGBAdapter) Login(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID, inbox *domain.Inboxes, solver domain.CaptchaSolver) error {
	const (
		loginURL     = "https://kgb.bank.in/login"
		userField    = "#loginId"
		passField    = "#pwd"
		captchaImg   = "#captchaImage"
		captchaField = "#captchaInput"
		submitBtn    = "#loginSubmit"
		loggedInMark = "#welcomeBanner"
	)

	if err := session.Navigate(ctx, tab, loginURL); err != nil {
		return err
	}
	if err := session.Type(ctx, tab, userField, cred.AuthID()); err != nil {
		return err
	}
	if err := session.Type(ctx, tab, passField, cred.Password); err != nil {
		return err
	}

	text, ticket, err := resolveCaptcha(ctx, session, tab, captchaImg, inbox, solver)
	if err != nil {
		return fmt.Errorf("op=KGBAdapter.Login: %w", domain.ErrCaptchaWrong)
	}
	if err := session.Type(ctx, tab, captchaField, text); err != nil {
		return err
	}
	if err := session.Click(ctx, tab, submitBtn); err != nil {
		return err
	}

	if err := session.WaitVisible(ctx, tab, loggedInMark, 10*time.Second); err != nil {
		reportBadCaptcha(ctx, solver, ticket)
		return fmt.Errorf("op=KGBAdapter.Login: %w", domain.ErrCaptchaWrong)
	}
	return nil
}

func (a *KGBAdapter) FetchStatement(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const (
		statementURL = "https://kgb.bank.in/statements"
		fromField    = "#rangeFrom"
		toField      = "#rangeTo"
		downloadBtn  = "#exportStatement"
	)

	from, to := a.resolveDateRange()

	if err := session.Navigate(ctx, tab, statementURL); err != nil {
		return "", err
	}
	if err := session.Type(ctx, tab, fromField, from.Format("02/01/2006")); err != nil {
		return "", err
	}
	if err := session.Type(ctx, tab, toField, to.Format("02/01/2006")); err != nil {
		return "", err
	}
	return session.TriggerDownload(ctx, tab, downloadBtn, 30*time.Second)
}

func (a *KGBAdapter) resolveDateRange() (from, to time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.override != nil {
		from, to = a.override.from, a.override.to
		a.override = nil
		return from, to
	}
	return dateWindow(time.Now(), cutoverKGB)
}

func (a *KGBAdapter) ReadBalance(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const balanceField = "#availBal"
	text, err := session.Text(ctx, tab, balanceField)
	if err != nil {
		return "", nil
	}
	return text, nil
}

var _ domain.BankAdapter = (*KGBAdapter)(nil)
var _ domain.DateRangeOverride = (*KGBAdapter)(nil)
