package command

import (
	"context"
	"testing"

	"github.com/fairyhunter13/autobank-supervisor/internal/balancemonitor"
	"github.com/fairyhunter13/autobank-supervisor/internal/credstore"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/messenger"
	"github.com/fairyhunter13/autobank-supervisor/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, msg domain.Message) error { return nil }

func TestClassifyBroadcast(t *testing.T) {
	otp, captcha := ClassifyBroadcast("123456")
	assert.True(t, otp)
	assert.False(t, captcha)

	otp, captcha = ClassifyBroadcast("ab3F9")
	assert.False(t, otp)
	assert.True(t, captcha)

	otp, captcha = ClassifyBroadcast("hello there")
	assert.False(t, otp)
	assert.False(t, captcha)
}

func TestMaskAccountNumber(t *testing.T) {
	assert.Equal(t, "***7890", maskAccountNumber("1234567890"))
	assert.Equal(t, "***12", maskAccountNumber("12"))
}

func TestDispatch_UnknownCommand(t *testing.T) {
	_, err := Dispatch(context.Background(), Deps{}, "/bogus", nil)
	require.Error(t, err)
}

func TestSplitRunArgs_PlainAliases(t *testing.T) {
	aliases, dr, err := splitRunArgs([]string{"acme_tmb", "biz_iob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_tmb", "biz_iob"}, aliases)
	assert.Nil(t, dr)
}

func TestSplitRunArgs_WithDateRange(t *testing.T) {
	aliases, dr, err := splitRunArgs([]string{"acme_kgb", "from", "01/07/2026", "to", "02/07/2026"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_kgb"}, aliases)
	require.NotNil(t, dr)
	assert.Equal(t, 1, dr.From.Day())
	assert.Equal(t, 2, dr.To.Day())
}

func TestSplitRunArgs_MalformedDateRange(t *testing.T) {
	_, _, err := splitRunArgs([]string{"acme_kgb", "from", "01/07/2026"})
	require.Error(t, err)
}

func TestDispatchAdd_RejectsWrongFieldCount(t *testing.T) {
	path := t.TempDir() + "/credentials.csv"
	store := credstore.NewCSVStore(path)
	msgr := messenger.New(noopTransport{}, true)
	reg := registry.New(registry.Deps{CredStore: store, Messenger: msgr}, nil)
	deps := Deps{Registry: reg, Monitor: balancemonitor.New(reg, msgr, 0)}

	_, err := Dispatch(context.Background(), deps, "/add", []string{"onlyonefield"})
	require.Error(t, err)
}

func TestDispatchAdd_ThenList(t *testing.T) {
	path := t.TempDir() + "/credentials.csv"
	store := credstore.NewCSVStore(path)
	msgr := messenger.New(noopTransport{}, true)
	reg := registry.New(registry.Deps{CredStore: store, Messenger: msgr}, nil)
	deps := Deps{Registry: reg, Monitor: balancemonitor.New(reg, msgr, 0)}

	_, err := Dispatch(context.Background(), deps, "/add", []string{"acme_tmb,user,pass,1234567890"})
	require.NoError(t, err)

	res, err := Dispatch(context.Background(), deps, "/list", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "acme_tmb")
	assert.Contains(t, res.Text, "***7890")
	assert.NotContains(t, res.Text, "1234567890")
}

func TestDispatchResetAlerts_RequiresArg(t *testing.T) {
	path := t.TempDir() + "/credentials.csv"
	store := credstore.NewCSVStore(path)
	msgr := messenger.New(noopTransport{}, true)
	reg := registry.New(registry.Deps{CredStore: store, Messenger: msgr}, nil)
	deps := Deps{Registry: reg, Monitor: balancemonitor.New(reg, msgr, 0)}

	_, err := Dispatch(context.Background(), deps, "/reset_alerts", nil)
	require.Error(t, err)

	res, err := Dispatch(context.Background(), deps, "/reset_alerts", []string{"all"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "cleared")
}
