package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDispute() *Dispute {
	return &Dispute{
		ID:           "dsp-1",
		MilestoneID:  "ms-1",
		PlaintiffID:  "client-1",
		DefendantID:  "vendor-1",
		EscrowAmount: decimal.NewFromInt(5000),
		Status:       DisputeStatusOpen,
	}
}

func TestDispute_Lifecycle(t *testing.T) {
	now := time.Now().UTC()
	d := openDispute()

	require.NoError(t, d.StartInvestigation(now))
	assert.Equal(t, DisputeStatusInvestigating, d.Status)
	assert.ErrorIs(t, d.StartInvestigation(now), ErrInvalidState)

	require.NoError(t, d.CheckResolvable(ResolutionSplitCustom, decimal.NewFromInt(2000), decimal.NewFromInt(3000)))
	require.NoError(t, d.Resolve(Resolution{Type: ResolutionSplitCustom}, now))
	assert.Equal(t, DisputeStatusResolved, d.Status)
	assert.NotNil(t, d.ResolvedAt)

	assert.ErrorIs(t, d.Resolve(Resolution{Type: ResolutionRefundClient}, now), ErrAlreadySettled)
	assert.ErrorIs(t, d.Withdraw("client-1", now), ErrAlreadySettled)
}

func TestDispute_WithdrawOnlyByPlaintiff(t *testing.T) {
	now := time.Now().UTC()
	d := openDispute()

	assert.ErrorIs(t, d.Withdraw("vendor-1", now), ErrForbidden)
	require.NoError(t, d.Withdraw("client-1", now))
	assert.Equal(t, DisputeStatusCancelled, d.Status)
	assert.ErrorIs(t, d.Resolve(Resolution{}, now), ErrInvalidState)
}

func TestDispute_CheckResolvableLeavesStateUntouched(t *testing.T) {
	d := openDispute()

	err := d.CheckResolvable(ResolutionSplitCustom, decimal.NewFromInt(2000), decimal.NewFromInt(2500))
	assert.ErrorIs(t, err, ErrSplitMismatch)
	assert.Equal(t, DisputeStatusOpen, d.Status)
	assert.Nil(t, d.Resolution)
}
