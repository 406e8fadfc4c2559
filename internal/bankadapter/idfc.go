package bankadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// IDFCAdapter drives the IDFC FIRST Bank net-banking portal.
type IDFCAdapter struct{}

func NewIDFCAdapter() *IDFCAdapter { return &IDFCAdapter{} }

func (a *IDFCAdapter) BankLabel() string { return SinkLabel(LabelIDFC) }

func (a *IDFCAdapter) Login(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID, inbox *domain.Inboxes, solver domain.CaptchaSolver) error {
	const (
		loginURL     = "https://netbanking.idfcfirstbank.com/login"
		userField    = "#username"
		passField    = "#password"
		submitBtn    = "#signIn"
		otpField     = "#mfaOtp"
		otpSubmitBtn = "#mfaSubmit"
		loggedInMark = "#accountsHome"
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
		return fmt.Errorf("op=IDFCAdapter.Login: %w", domain.ErrTimeout)
	}
	if err := session.Type(ctx, tab, otpField, otp); err != nil {
		return err
	}
	if err := session.Click(ctx, tab, otpSubmitBtn); err != nil {
		return err
	}

	if err := session.WaitVisible(ctx, tab, loggedInMark, 10*time.Second); err != nil {
		return fmt.Errorf("op=IDFCAdapter.Login: %w", domain.ErrTimeout)
	}
	return nil
}

func (a *IDFCAdapter) FetchStatement(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const (
		statementURL = "https://netbanking.idfcfirstbank.com/statements"
		fromField    = "#statementFrom"
		toField      = "#statementTo"
		downloadBtn  = "#exportCsv"
	)

	from, to := dateWindow(time.Now(), cutoverIDFC)

	if err := session.Navigate(ctx, tab, statementURL); err != nil {
		return "", err
	}
	if err := session.Type(ctx, tab, fromField, from.Format("2006-01-02")); err != nil {
		return "", err
	}
	if err := session.Type(ctx, tab, toField, to.Format("2006-01-02")); err != nil {
		return "", err
	}
	return session.TriggerDownload(ctx, tab, downloadBtn, 30*time.Second)
}

func (a *IDFCAdapter) ReadBalance(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const balanceField = "#availableBalanceValue"
	text, err := session.Text(ctx, tab, balanceField)
	if err != nil {
		return "", nil
	}
	return text, nil
}

var _ domain.BankAdapter = (*IDFCAdapter)(nil)
