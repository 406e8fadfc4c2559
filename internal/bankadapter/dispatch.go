package bankadapter

import (
	"fmt"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// NewForCredential resolves cred's BankLabel to a concrete BankAdapter, per
// spec.md §4.4's bank-label-selects-adapter rule.
func NewForCredential(cred domain.Credential) (domain.BankAdapter, error) {
	canonical, ok := ResolveCanonicalLabel(cred.BankLabel)
	if !ok {
		return nil, fmt.Errorf("op=NewForCredential bank_label=%s: %w", cred.BankLabel, domain.ErrUnsupportedBank)
	}
	switch canonical {
	case LabelTMB:
		return NewTMBAdapter(), nil
	case LabelIOB:
		return NewIOBAdapter(), nil
	case LabelKGB:
		return NewKGBAdapter(), nil
	case LabelIDBI:
		return NewIDBIAdapter(), nil
	case LabelIDFC:
		return NewIDFCAdapter(), nil
	case LabelCanara:
		return NewCanaraAdapter(), nil
	default:
		return nil, fmt.Errorf("op=NewForCredential bank_label=%s: %w", cred.BankLabel, domain.ErrUnsupportedBank)
	}
}
