package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential_AuthID(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want string
	}{
		{"prefers username", Credential{Username: "u", LoginID: "l", UserID: "id"}, "u"},
		{"falls back to loginId", Credential{LoginID: "l", UserID: "id"}, "l"},
		{"falls back to userId", Credential{UserID: "id"}, "id"},
		{"empty when all empty", Credential{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cred.AuthID())
		})
	}
}

func TestCredential_Validate(t *testing.T) {
	valid := Credential{Username: "u", Password: "p", AccountNumber: "123"}
	require.NoError(t, valid.Validate())

	noAuth := Credential{Password: "p", AccountNumber: "123"}
	assert.ErrorIs(t, noAuth.Validate(), ErrMissingField)

	noPassword := Credential{Username: "u", AccountNumber: "123"}
	assert.ErrorIs(t, noPassword.Validate(), ErrMissingField)

	noAccount := Credential{Username: "u", Password: "p"}
	assert.ErrorIs(t, noAccount.Validate(), ErrMissingField)
}

func TestWorkerState_IsAlive(t *testing.T) {
	alive := []WorkerState{StateInit, StateLoggingIn, StateSteady, StateRecovering}
	for _, s := range alive {
		assert.True(t, s.IsAlive(), s.String())
	}
	assert.False(t, StateStopped.IsAlive())
}

func TestInboxes_ConsumeOnce(t *testing.T) {
	inbox := &Inboxes{}
	inbox.PutCaptcha("ABCD12")

	text, ok := inbox.TakeCaptcha()
	require.True(t, ok)
	assert.Equal(t, "ABCD12", text)

	_, ok = inbox.TakeCaptcha()
	assert.False(t, ok, "second take on the same slot must be empty")
}

func TestInboxes_Clear(t *testing.T) {
	inbox := &Inboxes{}
	inbox.PutCaptcha("X")
	inbox.PutOTP("123456")
	inbox.Clear()

	_, okC := inbox.TakeCaptcha()
	_, okO := inbox.TakeOTP()
	assert.False(t, okC)
	assert.False(t, okO)
}

func TestThresholdLadder_HighestCrossed(t *testing.T) {
	ladder := DefaultThresholdLadder()

	step, found := ladder.HighestCrossed(72500)
	require.True(t, found)
	assert.Equal(t, int64(70000), step.Amount)

	_, found = ladder.HighestCrossed(49999)
	assert.False(t, found)

	step, found = ladder.HighestCrossed(150000)
	require.True(t, found)
	assert.Equal(t, int64(100000), step.Amount)
}

func TestAlertState_ShouldAlertAndRecord(t *testing.T) {
	state := NewAlertState()
	now := time.Now()

	assert.True(t, state.ShouldAlert(now, 300*time.Second), "never-alerted state should alert")

	state.Record(now, 70000)
	assert.False(t, state.ShouldAlert(now.Add(100*time.Second), 300*time.Second))
	assert.True(t, state.ShouldAlert(now.Add(300*time.Second), 300*time.Second))

	state.Clear()
	assert.Empty(t, state.TriggeredAmounts)
	assert.True(t, state.ShouldAlert(now, 300*time.Second))
}

func TestMessageKind_IsCritical(t *testing.T) {
	critical := []MessageKind{KindError, KindStart, KindStop, KindCaptcha, KindOTP, KindUploadOK}
	for _, k := range critical {
		assert.True(t, k.IsCritical(), string(k))
	}
	assert.False(t, KindInfo.IsCritical())
	assert.False(t, KindAlert.IsCritical())
}

func TestNormalizeBankLabel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  tmb  ", "TMB"},
		{"canara bank", "CANARA BANK"},
		{"M&T  Trust", "MANDT TRUST"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeBankLabel(tt.in))
	}
}
