package bankadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// CanaraAdapter drives the Canara Bank net-banking portal.
type CanaraAdapter struct{}

func NewCanaraAdapter() *CanaraAdapter { return &CanaraAdapter{} }

func (a *CanaraAdapter) BankLabel() string { return SinkLabel(LabelCanara) }

func (a *CanaraAdapter) Login(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID, inbox *domain.Inboxes, solver domain.CaptchaSolver) error {
	const (
		loginURL     = "https://netbanking.canarabank.in/login"
		userField    = "#userId"
		passField    = "#loginPwd"
		captchaImg   = "#captchaImg"
		captchaField = "#captchaTxt"
		submitBtn    = "#loginBtn"
		loggedInMark = "#acctDashboard"
		popupClose   = "#closePromo"
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
		return fmt.Errorf("op=CanaraAdapter.Login: %w", domain.ErrCaptchaWrong)
	}
	if err := session.Type(ctx, tab, captchaField, text); err != nil {
		return err
	}
	if err := session.Click(ctx, tab, submitBtn); err != nil {
		return err
	}

	if err := session.WaitVisible(ctx, tab, loggedInMark, 10*time.Second); err != nil {
		reportBadCaptcha(ctx, solver, ticket)
		return fmt.Errorf("op=CanaraAdapter.Login: %w", domain.ErrCaptchaWrong)
	}
	_ = session.Click(ctx, tab, popupClose)
	return nil
}

func (a *CanaraAdapter) FetchStatement(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const (
		statementURL = "https://netbanking.canarabank.in/statements"
		fromField    = "#fromDt"
		toField      = "#toDt"
		downloadBtn  = "#downloadStatement"
	)

	from, to := dateWindow(time.Now(), cutoverCanara)

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

func (a *CanaraAdapter) ReadBalance(ctx context.Context, cred domain.Credential, session domain.BrowserSession, tab domain.TabID) (string, error) {
	const balanceField = "#availBalAmt"
	text, err := session.Text(ctx, tab, balanceField)
	if err != nil {
		return "", nil
	}
	return text, nil
}

var _ domain.BankAdapter = (*CanaraAdapter)(nil)
