package credstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fairyhunter13/autobank-supervisor/internal/credstore"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, contents string) string {
	t.Helper()
	p := filepath.Join(dir, "creds.csv")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))
	return p
}

func TestLoadAll_MissingFileIsEmpty(t *testing.T) {
	store := credstore.NewCSVStore(filepath.Join(t.TempDir(), "absent.csv"))
	creds, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestLoadAll_SkipsIncompleteRows(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number\n"+
		"acme_tmb,,,acme,pw1,1234567890\n"+
		",,,,,\n"+
		"noauth_iob,,,,pw2,9999999999\n")
	store := credstore.NewCSVStore(p)

	creds, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, domain.Alias("acme_tmb"), creds[0].Alias)
	assert.Equal(t, "TMB", creds[0].BankLabel)
}

func TestLoadAll_PreservesExtraColumns(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number,notes\n"+
		"acme_tmb,,,acme,pw1,1234567890,do not call after 6pm\n")
	store := credstore.NewCSVStore(p)

	creds, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	require.Len(t, creds[0].Extra, 1)
	assert.Equal(t, "do not call after 6pm", creds[0].Extra[0])
}

func TestAppend_RejectsDuplicateAlias(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number\n"+
		"acme_tmb,,,acme,pw1,1234567890\n")
	store := credstore.NewCSVStore(p)

	err := store.Append(context.Background(), domain.Credential{
		Alias: "acme_tmb", Username: "acme2", Password: "pw2", AccountNumber: "2222222222",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateAlias)
}

func TestAppend_RejectsDuplicateAccountNumber(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number\n"+
		"acme_tmb,,,acme,pw1,1234567890\n")
	store := credstore.NewCSVStore(p)

	err := store.Append(context.Background(), domain.Credential{
		Alias: "biz_iob", Username: "biz", Password: "pw2", AccountNumber: "1234567890",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)
}

func TestAppend_ThenLoadAllRoundTrips(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number\n")
	store := credstore.NewCSVStore(p)

	err := store.Append(context.Background(), domain.Credential{
		Alias: "acme_tmb", Username: "acme", Password: "pw1", AccountNumber: "1234567890",
	})
	require.NoError(t, err)

	creds, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "1234567890", creds[0].AccountNumber)
}

func TestUpdate_SetsFieldAndPersists(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number\n"+
		"acme_tmb,,,acme,pw1,1234567890\n")
	store := credstore.NewCSVStore(p)

	cred, err := store.Update(context.Background(), "acme_tmb", "password", "newpw")
	require.NoError(t, err)
	assert.Equal(t, "newpw", cred.Password)

	creds, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "newpw", creds[0].Password)
}

func TestUpdate_UnknownAlias(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number\n")
	store := credstore.NewCSVStore(p)

	_, err := store.Update(context.Background(), "ghost", "password", "x")
	require.ErrorIs(t, err, domain.ErrAliasNotFound)
}

func TestUpdate_RejectsDuplicateAccountNumber(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "alias,login_id,user_id,username,password,account_number\n"+
		"acme_tmb,,,acme,pw1,1234567890\n"+
		"biz_iob,,,biz,pw2,2222222222\n")
	store := credstore.NewCSVStore(p)

	_, err := store.Update(context.Background(), "biz_iob", "accountNumber", "1234567890")
	require.ErrorIs(t, err, domain.ErrDuplicateAccountNumber)
}
