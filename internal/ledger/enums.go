// Package ledger defines the closed vocabularies of the decision ledger:
// stances, conviction tiers, market regimes, exit outcomes, and the
// human-in-the-loop negotiation actions. Every write path validates against
// these sets before touching the store; values outside a set are rejected,
// never coerced.
package ledger

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is wrapped by every enum parse failure so callers can
// distinguish domain violations from infrastructure errors.
var ErrInvalidValue = errors.New("value outside closed enumeration")

// Stance is the directional/positional action attached to a decision.
type Stance string

const (
	StanceEnterLong     Stance = "ENTER_LONG"
	StanceEnterShort    Stance = "ENTER_SHORT"
	StanceHoldLong      Stance = "HOLD_LONG"
	StanceHoldShort     Stance = "HOLD_SHORT"
	StanceHoldLongPaid  Stance = "HOLD_LONG_PAID"
	StanceHoldShortPaid Stance = "HOLD_SHORT_PAID"
	StanceStandDown     Stance = "STAND_DOWN"
	StanceWait          Stance = "WAIT"
)

var validStances = map[Stance]bool{
	StanceEnterLong:     true,
	StanceEnterShort:    true,
	StanceHoldLong:      true,
	StanceHoldShort:     true,
	StanceHoldLongPaid:  true,
	StanceHoldShortPaid: true,
	StanceStandDown:     true,
	StanceWait:          true,
}

// Valid reports whether the stance belongs to the closed set.
func (s Stance) Valid() bool { return validStances[s] }

// ParseStance validates a raw string against the stance vocabulary.
func ParseStance(v string) (Stance, error) {
	s := Stance(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid stance %q: %w", v, ErrInvalidValue)
	}
	return s, nil
}

// Tier is the conviction-rank label for a decision, ordered highest (S+++)
// to lowest (Ø, no conviction).
type Tier string

const (
	TierS3   Tier = "S+++"
	TierS2   Tier = "S++"
	TierS1   Tier = "S+"
	TierS    Tier = "S"
	TierA    Tier = "A"
	TierB    Tier = "B"
	TierC    Tier = "C"
	TierZero Tier = "Ø"
)

// tierRanks maps each tier to its ordinal; higher rank means higher conviction.
var tierRanks = map[Tier]int{
	TierS3:   7,
	TierS2:   6,
	TierS1:   5,
	TierS:    4,
	TierA:    3,
	TierB:    2,
	TierC:    1,
	TierZero: 0,
}

func (t Tier) Valid() bool { return tierRanks[t] > 0 || t == TierZero }

// Rank returns the tier's position on the conviction scale, 0 (Ø) through
// 7 (S+++). Rank of an invalid tier is -1.
func (t Tier) Rank() int {
	if !t.Valid() {
		return -1
	}
	return tierRanks[t]
}

func ParseTier(v string) (Tier, error) {
	t := Tier(v)
	if !t.Valid() {
		return "", fmt.Errorf("invalid tier %q: %w", v, ErrInvalidValue)
	}
	return t, nil
}

// Regime is a market-condition classification per symbol and timeframe.
type Regime string

const (
	RegimeCompression Regime = "COMPRESSION"
	RegimeExpansion   Regime = "EXPANSION"
	RegimeNeutral     Regime = "NEUTRAL"
)

var validRegimes = map[Regime]bool{
	RegimeCompression: true,
	RegimeExpansion:   true,
	RegimeNeutral:     true,
}

func (r Regime) Valid() bool { return validRegimes[r] }

func ParseRegime(v string) (Regime, error) {
	r := Regime(v)
	if !r.Valid() {
		return "", fmt.Errorf("invalid regime %q: %w", v, ErrInvalidValue)
	}
	return r, nil
}

// Authority marks whether a decision carries normal or prime authority.
type Authority string

const (
	AuthorityNormal Authority = "NORMAL"
	AuthorityPrime  Authority = "PRIME"
)

func (a Authority) Valid() bool { return a == AuthorityNormal || a == AuthorityPrime }

func ParseAuthority(v string) (Authority, error) {
	a := Authority(v)
	if !a.Valid() {
		return "", fmt.Errorf("invalid authority %q: %w", v, ErrInvalidValue)
	}
	return a, nil
}

// ExitReason records why a position was closed. NONE means still open.
type ExitReason string

const (
	ExitCryptoTimeout ExitReason = "CRYPTO_TIMEOUT"
	ExitDistribution  ExitReason = "DISTRIBUTION"
	ExitMomentumFade  ExitReason = "MOMENTUM_FADE"
	ExitRegimeShift   ExitReason = "REGIME_SHIFT"
	ExitHTFConflict   ExitReason = "HTF_CONFLICT"
	ExitTimeDecay     ExitReason = "TIME_DECAY"
	ExitHuman         ExitReason = "HUMAN_EXIT"
	ExitNone          ExitReason = "NONE"
)

var validExitReasons = map[ExitReason]bool{
	ExitCryptoTimeout: true,
	ExitDistribution:  true,
	ExitMomentumFade:  true,
	ExitRegimeShift:   true,
	ExitHTFConflict:   true,
	ExitTimeDecay:     true,
	ExitHuman:         true,
	ExitNone:          true,
}

func (e ExitReason) Valid() bool { return validExitReasons[e] }

// Terminal reports whether the reason closes a decision.
func (e ExitReason) Terminal() bool { return e.Valid() && e != ExitNone }

func ParseExitReason(v string) (ExitReason, error) {
	e := ExitReason(v)
	if !e.Valid() {
		return "", fmt.Errorf("invalid exit reason %q: %w", v, ErrInvalidValue)
	}
	return e, nil
}

// ExitQuality grades the timing of an exit once the position resolves.
type ExitQuality string

const (
	QualityEarly ExitQuality = "EARLY"
	QualityGood  ExitQuality = "GOOD"
	QualityLate  ExitQuality = "LATE"
)

func (q ExitQuality) Valid() bool {
	return q == QualityEarly || q == QualityGood || q == QualityLate
}

func ParseExitQuality(v string) (ExitQuality, error) {
	q := ExitQuality(v)
	if !q.Valid() {
		return "", fmt.Errorf("invalid exit quality %q: %w", v, ErrInvalidValue)
	}
	return q, nil
}

// HumanAction is the human's disposition on a machine-proposed action.
type HumanAction string

const (
	ActionConfirm HumanAction = "CONFIRM"
	ActionReject  HumanAction = "REJECT"
	ActionHold    HumanAction = "HOLD"
)

func (h HumanAction) Valid() bool {
	return h == ActionConfirm || h == ActionReject || h == ActionHold
}

func ParseHumanAction(v string) (HumanAction, error) {
	h := HumanAction(v)
	if !h.Valid() {
		return "", fmt.Errorf("invalid human action %q: %w", v, ErrInvalidValue)
	}
	return h, nil
}

// ValidateConfidence checks the optional confidence score range.
func ValidateConfidence(c *int) error {
	if c == nil {
		return nil
	}
	if *c < 0 || *c > 100 {
		return fmt.Errorf("confidence %d out of range [0,100]: %w", *c, ErrInvalidValue)
	}
	return nil
}
