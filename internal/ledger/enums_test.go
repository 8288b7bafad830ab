package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStance_ClosedSet(t *testing.T) {
	valid := []string{
		"ENTER_LONG", "ENTER_SHORT", "HOLD_LONG", "HOLD_SHORT",
		"HOLD_LONG_PAID", "HOLD_SHORT_PAID", "STAND_DOWN", "WAIT",
	}
	for _, v := range valid {
		t.Run(v, func(t *testing.T) {
			s, err := ParseStance(v)
			require.NoError(t, err)
			assert.Equal(t, Stance(v), s)
		})
	}

	invalid := []string{"", "ENTER LONG", "enter_long", "BUY", "HOLD", "WAIT "}
	for _, v := range invalid {
		t.Run("rejects_"+v, func(t *testing.T) {
			_, err := ParseStance(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestTier_OrderingAndMembership(t *testing.T) {
	ordered := []Tier{TierS3, TierS2, TierS1, TierS, TierA, TierB, TierC, TierZero}

	for i := 0; i < len(ordered)-1; i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i+1].Rank(),
			"%s should outrank %s", ordered[i], ordered[i+1])
	}

	assert.Equal(t, 7, TierS3.Rank())
	assert.Equal(t, 0, TierZero.Rank())
	assert.Equal(t, -1, Tier("S-").Rank())

	_, err := ParseTier("D")
	assert.ErrorIs(t, err, ErrInvalidValue)

	tier, err := ParseTier("Ø")
	require.NoError(t, err)
	assert.Equal(t, TierZero, tier)
}

func TestRegime_ClosedSet(t *testing.T) {
	for _, v := range []string{"COMPRESSION", "EXPANSION", "NEUTRAL"} {
		_, err := ParseRegime(v)
		assert.NoError(t, err)
	}
	for _, v := range []string{"", "TRENDING", "neutral", "CHOP"} {
		_, err := ParseRegime(v)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}
}

func TestExitReason_TerminalAndMembership(t *testing.T) {
	terminal := []ExitReason{
		ExitCryptoTimeout, ExitDistribution, ExitMomentumFade,
		ExitRegimeShift, ExitHTFConflict, ExitTimeDecay, ExitHuman,
	}
	for _, r := range terminal {
		assert.True(t, r.Valid(), "%s should be valid", r)
		assert.True(t, r.Terminal(), "%s should be terminal", r)
	}

	assert.True(t, ExitNone.Valid())
	assert.False(t, ExitNone.Terminal())

	_, err := ParseExitReason("STOPPED_OUT")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestExitQuality_ClosedSet(t *testing.T) {
	for _, v := range []string{"EARLY", "GOOD", "LATE"} {
		_, err := ParseExitQuality(v)
		assert.NoError(t, err)
	}
	_, err := ParseExitQuality("PERFECT")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestHumanAction_ClosedSet(t *testing.T) {
	for _, v := range []string{"CONFIRM", "REJECT", "HOLD"} {
		_, err := ParseHumanAction(v)
		assert.NoError(t, err)
	}
	for _, v := range []string{"", "ACK", "confirm"} {
		_, err := ParseHumanAction(v)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}
}

func TestAuthority_ClosedSet(t *testing.T) {
	for _, v := range []string{"NORMAL", "PRIME"} {
		_, err := ParseAuthority(v)
		assert.NoError(t, err)
	}
	_, err := ParseAuthority("SUPER")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValidateConfidence(t *testing.T) {
	assert.NoError(t, ValidateConfidence(nil))

	for _, v := range []int{0, 50, 100} {
		v := v
		assert.NoError(t, ValidateConfidence(&v))
	}
	for _, v := range []int{-1, 101, 1000} {
		v := v
		assert.ErrorIs(t, ValidateConfidence(&v), ErrInvalidValue)
	}
}
