package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaprime/omegaledger/internal/ledger"
)

type countingRegimes struct {
	calls int
	err   error
}

func (c *countingRegimes) Upsert(context.Context, *RegimeState) error {
	c.calls++
	return c.err
}

func (c *countingRegimes) Get(context.Context, string, string) (*RegimeState, error) {
	c.calls++
	return nil, c.err
}

func (c *countingRegimes) List(context.Context) ([]RegimeState, error) {
	c.calls++
	return nil, c.err
}

type countingLedger struct{ calls int }

func (c *countingLedger) Create(context.Context, *DecisionEntry) error { c.calls++; return nil }
func (c *countingLedger) Get(context.Context, uuid.UUID) (*DecisionEntry, error) {
	c.calls++
	return nil, nil
}
func (c *countingLedger) ListByAccount(context.Context, string, int) ([]DecisionEntry, error) {
	c.calls++
	return nil, nil
}
func (c *countingLedger) ListOpen(context.Context, int) ([]DecisionEntry, error) {
	c.calls++
	return nil, nil
}
func (c *countingLedger) UpdateEnrichment(context.Context, uuid.UUID, Enrichment) error {
	c.calls++
	return nil
}
func (c *countingLedger) Close(context.Context, uuid.UUID, ledger.ExitReason, ledger.ExitQuality) error {
	c.calls++
	return nil
}
func (c *countingLedger) Delete(context.Context, uuid.UUID) error { c.calls++; return nil }

type countingNegotiations struct{ calls int }

func (c *countingNegotiations) Propose(context.Context, *NegotiationRound) error {
	c.calls++
	return nil
}
func (c *countingNegotiations) Respond(context.Context, int64, ledger.HumanAction, *string) error {
	c.calls++
	return nil
}
func (c *countingNegotiations) AutoConfirm(context.Context, int64) error { c.calls++; return nil }
func (c *countingNegotiations) Get(context.Context, int64) (*NegotiationRound, error) {
	c.calls++
	return nil, nil
}
func (c *countingNegotiations) ListByDecision(context.Context, uuid.UUID) ([]NegotiationRound, error) {
	c.calls++
	return nil, nil
}
func (c *countingNegotiations) ListPendingBefore(context.Context, time.Time, int) ([]NegotiationRound, error) {
	c.calls++
	return nil, nil
}

func TestInstrument_DelegatesAndPreservesErrors(t *testing.T) {
	regimes := &countingRegimes{err: fmt.Errorf("db down")}
	repos := Instrument(&Repository{
		Ledger:       &countingLedger{},
		Regimes:      regimes,
		Negotiations: &countingNegotiations{},
	})

	ctx := context.Background()

	err := repos.Regimes.Upsert(ctx, &RegimeState{Symbol: "BTCUSD", Timeframe: "1h", Regime: ledger.RegimeNeutral})
	require.Error(t, err)
	assert.Equal(t, "db down", err.Error(), "the wrapper must not rewrap errors")
	assert.Equal(t, 1, regimes.calls)

	regimes.err = nil
	state, err := repos.Regimes.Get(ctx, "BTCUSD", "1h")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, 2, regimes.calls)
}

func TestInstrument_WrapsAllRepos(t *testing.T) {
	ledgerRepo := &countingLedger{}
	negotiations := &countingNegotiations{}
	repos := Instrument(&Repository{
		Ledger:       ledgerRepo,
		Regimes:      &countingRegimes{},
		Negotiations: negotiations,
	})

	ctx := context.Background()
	require.NoError(t, repos.Ledger.Create(ctx, &DecisionEntry{}))
	require.NoError(t, repos.Negotiations.AutoConfirm(ctx, 1))

	assert.Equal(t, 1, ledgerRepo.calls)
	assert.Equal(t, 1, negotiations.calls)
}
