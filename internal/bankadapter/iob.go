package bankadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// IOBAdapter drives the Indian Overseas Bank net-banking portal. Uses the
// 6am cutover per spec.md §9 Open Questions.
type IOBAdapter struct{}

func NewIOBAdapter() *IOBAdapter { return &IOBAdapter{} }

func (a *IOBAdapter) BankLabel() string { return SinkLabel(LabelIOB) }

func (a *IOBAdapter) Login(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID, inbox *domain.Inboxes, solver domain.CaptchaSolver) error {
	const (
		loginURL     = "https://iobnet.iob.in/login"
		userField    = "#userId"
		passField    = "#password"
		submitBtn    = "#loginBtn"
		otpField     = "#otp"
		otpSubmitBtn = "#otpSubmitBtn"
		loggedInMark = "#dashboard"
		popupClose   = "#dismissPopup"
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
	if err := session.Click(ctx, tab, submitBtn); err != nil {
		return err
	}

	otp, err := waitForOTP(ctx, inbox, otpWaitTimeout)
	if err != nil {
		return fmt.Errorf("op=IOBAdapter.Login: %w", domain.ErrTimeout)
	}
	if err := session.Type(ctx, tab, otpField, otp); err != nil {
		return err
	}
	if err := session.Click(ctx, tab, otpSubmitBtn); err != nil {
		return err
	}

	if err := session.WaitVisible(ctx, tab, loggedInMark, 10*time.Second); err != nil {
		return fmt.Errorf("op=IOBAdapter.Login: %w", domain.ErrTimeout)
	}
	_ = session.Click(ctx, tab, popupClose) // bank-specific post-login popup, best-effort dismiss
	return nil
}

func (a *IOBAdapter) FetchStatement(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const (
		statementURL = "https://iobnet.iob.in/statements"
		fromField    = "#fromDate"
		toField      = "#toDate"
		downloadBtn  = "#downloadCSV"
	)

	from, to := dateWindow(time.Now(), cutoverIOB)

	if err := session.Navigate(ctx, tab, statementURL); err != nil {
		return "", err
	}
	if err := session.Type(ctx, tab, fromField, from.Format("02-01-2006")); err != nil {
		return "", err
	}
	if err := session.Type(ctx, tab, toField, to.Format("02-01-2006")); err != nil {
		return "", err
	}
	return session.TriggerDownload(ctx, tab, downloadBtn, 30*time.Second)
}

func (a *IOBAdapter) ReadBalance(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const balanceField = "#acctBalance"
	text, err := session.Text(ctx, tab, balanceField)
	if err != nil {
		return "", nil
	}
	return text, nil
}

// DetectLoggedOut implements the optional LogoutDetector capability: IOB
// redirects to a re-auth banner when the server-side session expires.
func (a *IOBAdapter) DetectLoggedOut(ctx context.Context, session domain.BrowserSession, tab domain.TabID) bool {
	const sessionExpiredBanner = "#sessionExpired"
	_, err := session.Text(ctx, tab, sessionExpiredBanner)
	return err == nil
}

var _ domain.BankAdapter = (*IOBAdapter)(nil)
var _ domain.LogoutDetector = (*IOBAdapter)(nil)
