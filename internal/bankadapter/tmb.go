package bankadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// cutover hours per spec.md §9 Open Questions — preserved literally per
// adapter, never unified into one shared constant.
const (
	cutoverTMB    = 5
	cutoverIOB    = 6
	cutoverKGB    = 6
	cutoverIDBI   = 5
	cutoverIDFC   = 5
	cutoverCanara = 5
)

const (
	captchaWaitTimeout = 180 * time.Second
	otpWaitTimeout     = 300 * time.Second
)

// TMBAdapter drives the Tamilnad Mercantile Bank net-banking portal. Exact
// selectors are a portal-specific appendix outside this spec's scope; the
// placeholders below satisfy the BrowserSession capability contract.
type TMBAdapter struct{}

func NewTMBAdapter() *TMBAdapter { return &TMBAdapter{} }

func (a *TMBAdapter) BankLabel() string { return SinkLabel(LabelTMB) }

func (a *TMBAdapter) Login(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID, inbox *domain.Inboxes, solver domain.CaptchaSolver) error {
	const (
		loginURL     = "https://www.tmbnet.in/login"
		userField    = "#txtUserId"
		passField    = "#txtPassword"
		captchaImg   = "#imgCaptcha"
		captchaField = "#txtCaptcha"
		submitBtn    = "#btnLogin"
		loggedInMark = "#accountSummary"
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
		return fmt.Errorf("op=TMBAdapter.Login: %w", domain.ErrCaptchaWrong)
	}
	if err := session.Type(ctx, tab, captchaField, text); err != nil {
		return err
	}
	if err := session.Click(ctx, tab, submitBtn); err != nil {
		return err
	}

	if err := session.WaitVisible(ctx, tab, loggedInMark, 10*time.Second); err != nil {
		reportBadCaptcha(ctx, solver, ticket)
		return fmt.Errorf("op=TMBAdapter.Login: %w", domain.ErrCaptchaWrong)
	}
	return nil
}

func (a *TMBAdapter) FetchStatement(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const (
		statementURL = "https://www.tmbnet.in/statements"
		fromField    = "#dateFrom"
		toField      = "#dateTo"
		downloadBtn  = "#btnDownloadStatement"
	)

	from, to := dateWindow(time.Now(), cutoverTMB)

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

func (a *TMBAdapter) ReadBalance(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const balanceField = "#availableBalance"
	text, err := session.Text(ctx, tab, balanceField)
	if err != nil {
		return "", nil // best-effort per spec.md §4.1
	}
	return text, nil
}

var _ domain.BankAdapter = (*TMBAdapter)(nil)
