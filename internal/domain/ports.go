package domain

import (
	"context"
	"time"
)

// TabID identifies one open browser tab within a BrowserSession.
type TabID string

// BrowserSession is the abstract, per-alias isolated browser the Worker
// Runtime and BankAdapters drive. Its concrete implementation (driver,
// anti-detection, rendering) is an external collaborator; this interface is
// the capability contract spec.md §1/§5 requires of it.
type BrowserSession interface {
	// Alias identifies which worker owns this session.
	Alias() Alias
	// ProfileDir is the session's exclusively-owned browser profile directory.
	ProfileDir() string
	// DownloadDir is the session's exclusively-owned download directory.
	DownloadDir() string

	// NewTab opens a fresh blank tab and returns its handle.
	NewTab(ctx context.Context) (TabID, error)
	// Tabs lists all currently open tab handles.
	Tabs(ctx context.Context) ([]TabID, error)
	// CloseTab closes one tab.
	CloseTab(ctx context.Context, tab TabID) error
	// CloseAllExcept closes every tab other than keep.
	CloseAllExcept(ctx context.Context, keep TabID) error

	// Navigate loads url in the given tab.
	Navigate(ctx context.Context, tab TabID, url string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, tab TabID, selector string) error
	// Type enters text into the first element matching selector.
	Type(ctx context.Context, tab TabID, selector, text string) error
	// Text returns the rendered text of the first element matching selector.
	Text(ctx context.Context, tab TabID, selector string) (string, error)
	// WaitVisible blocks until selector is visible or timeout elapses.
	WaitVisible(ctx context.Context, tab TabID, selector string, timeout time.Duration) error
	// Screenshot captures selector (or the full page, if empty) as PNG bytes.
	Screenshot(ctx context.Context, tab TabID, selector string) ([]byte, error)
	// TriggerDownload clicks selector and waits for a newly-appeared,
	// size-stable file under DownloadDir; returns its path.
	TriggerDownload(ctx context.Context, tab TabID, selector string, timeout time.Duration) (string, error)

	// Close tears down the browser process and releases the profile lock.
	Close(ctx context.Context) error
}

// CaptchaSolver resolves an image CAPTCHA to text, optionally via a remote
// paid service; ReportBad lets the caller flag a wrong solve.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (text string, ticket string, err error)
	ReportBad(ctx context.Context, ticket string) error
}

// StatementSink uploads one statement file under the AutoBank portal's
// (bank-label, account-number) namespace.
type StatementSink interface {
	Upload(ctx context.Context, bankLabel, accountNumber, filePath string) error
}

// BankAdapter is the capability contract every supported bank implements.
// Adapters contain only portal navigation; retry, screenshotting,
// cancellation and tab reset all live in the Worker Runtime.
type BankAdapter interface {
	// BankLabel is this adapter's canonical label (§3/§4.4).
	BankLabel() string
	// Login drives the portal to a signed-in state.
	Login(ctx context.Context, cred Credential, session BrowserSession, tab TabID, inbox *Inboxes, solver CaptchaSolver) error
	// FetchStatement downloads the day's statement and returns its path.
	FetchStatement(ctx context.Context, cred Credential, session BrowserSession, tab TabID) (string, error)
	// ReadBalance reads the portal-rendered available balance, unchanged.
	ReadBalance(ctx context.Context, cred Credential, session BrowserSession, tab TabID) (string, error)
}

// LogoutDetector is the optional fourth BankAdapter capability (§4.1). Not
// every adapter implements it; callers use a type assertion.
type LogoutDetector interface {
	DetectLoggedOut(ctx context.Context, session BrowserSession, tab TabID) bool
}

// DateRangeOverride is the optional KGB-only override (§4.2).
type DateRangeOverride interface {
	SetDateRange(from, to time.Time)
}

// CredentialStore is the read/write backing store for alias credentials.
type CredentialStore interface {
	LoadAll(ctx context.Context) ([]Credential, error)
	Update(ctx context.Context, alias Alias, field, value string) (Credential, error)
	Append(ctx context.Context, cred Credential) error
}

// MessageTransport is the abstract outbound channel (chat bot API, etc.)
// the Messenger delivers batched/critical Message values through.
type MessageTransport interface {
	Send(ctx context.Context, msg Message) error
}
