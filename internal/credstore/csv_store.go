// Package credstore implements domain.CredentialStore over a CSV file, per
// spec.md §6.2.
package credstore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fairyhunter13/autobank-supervisor/internal/bankadapter"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

var knownColumns = []string{"alias", "login_id", "user_id", "username", "password", "account_number"}

var fieldColumn = map[string]string{
	"loginId":       "login_id",
	"userId":        "user_id",
	"password":      "password",
	"accountNumber": "account_number",
}

// CSVStore is the concrete domain.CredentialStore backed by a CSV file.
// Every write is atomic: read-all, modify in memory, write-all to a temp
// file, rename over the original. A single mutex serializes readers and the
// single writer, per spec.md §5.
type CSVStore struct {
	mu   sync.Mutex
	path string
}

// NewCSVStore opens (lazily — the file need not exist yet) a CSV credential
// store at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// rawTable is the file's header plus its rows, preserving any unrecognized
// trailing columns verbatim, per SPEC_FULL.md §3 supplement.
type rawTable struct {
	header []string
	rows   [][]string
}

func (t *rawTable) colIndex(name string) int {
	for i, h := range t.header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func (s *CSVStore) readRaw() (*rawTable, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		hdr := make([]string, len(knownColumns))
		copy(hdr, knownColumns)
		return &rawTable{header: hdr}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=CSVStore.readRaw: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("op=CSVStore.readRaw: %w", err)
	}
	if len(records) == 0 {
		hdr := make([]string, len(knownColumns))
		copy(hdr, knownColumns)
		return &rawTable{header: hdr}, nil
	}
	return &rawTable{header: records[0], rows: records[1:]}, nil
}

func (s *CSVStore) writeRaw(t *rawTable) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credstore-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("op=CSVStore.writeRaw: %w", err)
	}
	tmpPath := tmp.Name()
	w := csv.NewWriter(tmp)
	if err := w.Write(t.header); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("op=CSVStore.writeRaw: %w", err)
	}
	for _, row := range t.rows {
		if err := w.Write(row); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("op=CSVStore.writeRaw: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("op=CSVStore.writeRaw: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("op=CSVStore.writeRaw: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("op=CSVStore.writeRaw: %w", err)
	}
	return nil
}

func rowToCredential(t *rawTable, row []string) (domain.Credential, bool) {
	get := func(name string) string {
		idx := t.colIndex(name)
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	alias := get("alias")
	if alias == "" {
		return domain.Credential{}, false
	}
	username, loginID, userID := get("username"), get("login_id"), get("user_id")
	if username == "" && loginID == "" && userID == "" {
		return domain.Credential{}, false
	}

	cred := domain.Credential{
		Alias:         domain.Alias(alias),
		LoginID:       loginID,
		UserID:        userID,
		Username:      username,
		Password:      get("password"),
		AccountNumber: get("account_number"),
	}
	if label, ok := bankadapter.DeriveBankLabelFromAlias(cred.Alias); ok {
		cred.BankLabel = label
	}

	for i, h := range t.header {
		if isKnownColumn(h) {
			continue
		}
		if i < len(row) {
			cred.Extra = append(cred.Extra, row[i])
		} else {
			cred.Extra = append(cred.Extra, "")
		}
	}
	return cred, true
}

func isKnownColumn(name string) bool {
	for _, k := range knownColumns {
		if strings.EqualFold(strings.TrimSpace(name), k) {
			return true
		}
	}
	return false
}

func credentialToRow(t *rawTable, cred domain.Credential) []string {
	row := make([]string, len(t.header))
	set := func(name, value string) {
		if idx := t.colIndex(name); idx >= 0 {
			row[idx] = value
		}
	}
	set("alias", string(cred.Alias))
	set("login_id", cred.LoginID)
	set("user_id", cred.UserID)
	set("username", cred.Username)
	set("password", cred.Password)
	set("account_number", cred.AccountNumber)

	extraIdx := 0
	for i, h := range t.header {
		if isKnownColumn(h) {
			continue
		}
		if extraIdx < len(cred.Extra) {
			row[i] = cred.Extra[extraIdx]
		}
		extraIdx++
	}
	return row
}

// LoadAll reads every row, skipping incomplete rows with a logged reason,
// per spec.md §6.2.
func (s *CSVStore) LoadAll(ctx context.Context) ([]domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.readRaw()
	if err != nil {
		return nil, err
	}

	creds := make([]domain.Credential, 0, len(t.rows))
	for i, row := range t.rows {
		if isBlankRow(row) {
			continue
		}
		cred, ok := rowToCredential(t, row)
		if !ok {
			slog.Warn("credstore: skipping incomplete row", "row_index", i, "reason", "missing alias or all of username/login_id/user_id")
			continue
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Update sets one field on the row matching alias and rewrites the store.
// field must be one of loginId, userId, password, accountNumber, per
// spec.md §6.3. Enforces I6 (no duplicate accountNumber) atomically.
func (s *CSVStore) Update(ctx context.Context, alias domain.Alias, field, value string) (domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := fieldColumn[field]
	if !ok {
		return domain.Credential{}, fmt.Errorf("op=CSVStore.Update field=%s: %w", field, domain.ErrMissingField)
	}

	t, err := s.readRaw()
	if err != nil {
		return domain.Credential{}, err
	}

	aliasIdx := t.colIndex("alias")
	rowIdx := -1
	for i, row := range t.rows {
		if aliasIdx >= 0 && aliasIdx < len(row) && strings.TrimSpace(row[aliasIdx]) == string(alias) {
			rowIdx = i
			break
		}
	}
	if rowIdx < 0 {
		return domain.Credential{}, fmt.Errorf("op=CSVStore.Update alias=%s: %w", alias, domain.ErrAliasNotFound)
	}

	if field == "accountNumber" {
		if collision, ok := findAccountNumberCollision(t, value, rowIdx); ok {
			return domain.Credential{}, fmt.Errorf("op=CSVStore.Update alias=%s colliding_alias=%s: %w", alias, collision, domain.ErrDuplicateAccountNumber)
		}
	}

	colIdx := t.colIndex(col)
	row := t.rows[rowIdx]
	if colIdx >= len(row) {
		padded := make([]string, colIdx+1)
		copy(padded, row)
		row = padded
	}
	row[colIdx] = value
	t.rows[rowIdx] = row

	if err := s.writeRaw(t); err != nil {
		return domain.Credential{}, err
	}

	cred, _ := rowToCredential(t, row)
	return cred, nil
}

func findAccountNumberCollision(t *rawTable, accountNumber string, excludeRow int) (string, bool) {
	accIdx := t.colIndex("account_number")
	aliasIdx := t.colIndex("alias")
	if accIdx < 0 {
		return "", false
	}
	for i, row := range t.rows {
		if i == excludeRow {
			continue
		}
		if accIdx < len(row) && strings.TrimSpace(row[accIdx]) == accountNumber {
			if aliasIdx >= 0 && aliasIdx < len(row) {
				return row[aliasIdx], true
			}
			return "", true
		}
	}
	return "", false
}

// Append adds a new credential row. Enforces duplicate-alias and I6
// (duplicate-accountNumber) invariants, and cred.Validate()'s required
// fields, per spec.md §6.3/§8.
func (s *CSVStore) Append(ctx context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cred.Validate(); err != nil {
		return err
	}

	t, err := s.readRaw()
	if err != nil {
		return err
	}

	aliasIdx := t.colIndex("alias")
	for _, row := range t.rows {
		if aliasIdx >= 0 && aliasIdx < len(row) && strings.TrimSpace(row[aliasIdx]) == string(cred.Alias) {
			return fmt.Errorf("op=CSVStore.Append alias=%s: %w", cred.Alias, domain.ErrDuplicateAlias)
		}
	}
	if collision, ok := findAccountNumberCollision(t, cred.AccountNumber, -1); ok {
		return fmt.Errorf("op=CSVStore.Append alias=%s colliding_alias=%s: %w", cred.Alias, collision, domain.ErrDuplicateAccountNumber)
	}

	t.rows = append(t.rows, credentialToRow(t, cred))
	return s.writeRaw(t)
}
