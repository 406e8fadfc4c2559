package bankadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// IDBIAdapter drives the IDBI Bank net-banking portal.
type IDBIAdapter struct{}

func NewIDBIAdapter() *IDBIAdapter { return &IDBIAdapter{} }

func (a *IDBIAdapter) BankLabel() string { return SinkLabel(LabelIDBI) }

func (a *IDBIAdapter) Login(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID, inbox *domain.Inboxes, solver domain.CaptchaSolver) error {
	const (
		loginURL     = "https://idbibank.co.in/login"
		userField    = "#CustomerID"
		passField    = "#LoginPassword"
		captchaImg   = "#CaptchaImg"
		captchaField = "#CaptchaCode"
		submitBtn    = "#Login"
		otpField     = "#OtpCode"
		otpSubmitBtn = "#OtpSubmit"
		loggedInMark = "#AccountOverview"
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
		return fmt.Errorf("op=IDBIAdapter.Login: %w", domain.ErrCaptchaWrong)
	}
	if err := session.Type(ctx, tab, captchaField, text); err != nil {
		return err
	}
	if err := session.Click(ctx, tab, submitBtn); err != nil {
		return err
	}

	otp, err := waitForOTP(ctx, inbox, otpWaitTimeout)
	if err != nil {
		reportBadCaptcha(ctx, solver, ticket)
		return fmt.Errorf("op=IDBIAdapter.Login: %w", domain.ErrTimeout)
	}
	if err := session.Type(ctx, tab, otpField, otp); err != nil {
		return err
	}
	if err := session.Click(ctx, tab, otpSubmitBtn); err != nil {
		return err
	}

	if err := session.WaitVisible(ctx, tab, loggedInMark, 10*time.Second); err != nil {
		return fmt.Errorf("op=IDBIAdapter.Login: %w", domain.ErrTimeout)
	}
	return nil
}

func (a *IDBIAdapter) FetchStatement(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const (
		statementURL = "https://idbibank.co.in/statements"
		fromField    = "#FromDate"
		toField      = "#ToDate"
		downloadBtn  = "#DownloadXLS"
	)

	from, to := dateWindow(time.Now(), cutoverIDBI)

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

func (a *IDBIAdapter) ReadBalance(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const balanceField = "#AvailableBalance"
	text, err := session.Text(ctx, tab, balanceField)
	if err != nil {
		return "", nil
	}
	return text, nil
}

var _ domain.BankAdapter = (*IDBIAdapter)(nil)
