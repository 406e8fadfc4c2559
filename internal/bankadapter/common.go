package bankadapter

import (
	"context"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

const inboxPollInterval = 500 * time.Millisecond

// dateWindow implements spec.md §4.2's date window policy: before
// cutoverHour local time, the window spans yesterday through today;
// otherwise it's today only.
func dateWindow(now time.Time, cutoverHour int) (from, to time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Hour() < cutoverHour {
		return today.AddDate(0, 0, -1), today
	}
	return today, today
}

// waitForCaptcha busy-waits on inbox.TakeCaptcha at the spec-mandated 0.5s
// poll interval, re-checking ctx.Done() each cycle (the Worker cancels ctx
// on stopSignal), bounded by timeout.
func waitForCaptcha(ctx context.Context, inbox *domain.Inboxes, timeout time.Duration) (string, error) {
	return waitForCode(ctx, inbox.TakeCaptcha, timeout)
}

// waitForOTP busy-waits on inbox.TakeOTP the same way.
func waitForOTP(ctx context.Context, inbox *domain.Inboxes, timeout time.Duration) (string, error) {
	return waitForCode(ctx, inbox.TakeOTP, timeout)
}

// resolveCaptcha obtains CAPTCHA text either from the paid solver (when
// configured) or, when solver is nil (TwoCaptchaApiKey unset, spec.md
// §6.1), from a human pasting the text into chat — which the broadcast rule
// (spec.md §6.3) delivers into inbox. ticket is empty in the manual path,
// since there is no paid-service attempt to flag as wrong.
func resolveCaptcha(ctx context.Context, session domain.BrowserSession, tab domain.TabID, captchaImgSelector string, inbox *domain.Inboxes, solver domain.CaptchaSolver) (text, ticket string, err error) {
	if solver != nil {
		img, err := session.Screenshot(ctx, tab, captchaImgSelector)
		if err != nil {
			return "", "", err
		}
		return solver.Solve(ctx, img)
	}
	text, err = waitForCaptcha(ctx, inbox, captchaWaitTimeout)
	return text, "", err
}

// reportBadCaptcha flags ticket with the solver, when one was used.
func reportBadCaptcha(ctx context.Context, solver domain.CaptchaSolver, ticket string) {
	if solver != nil && ticket != "" {
		_ = solver.ReportBad(ctx, ticket)
	}
}

func waitForCode(ctx context.Context, take func() (string, bool), timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(inboxPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if code, ok := take(); ok {
			return code, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
	return "", domain.ErrTimeout
}
