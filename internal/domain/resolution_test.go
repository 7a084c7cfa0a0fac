package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateResolution(t *testing.T) {
	escrow := decimal.NewFromInt(5000)

	tests := []struct {
		name    string
		typ     ResolutionType
		client  string
		vendor  string
		wantErr error
	}{
		{name: "split adds up", typ: ResolutionSplitCustom, client: "2000", vendor: "3000"},
		{name: "split short", typ: ResolutionSplitCustom, client: "2000", vendor: "2500", wantErr: ErrSplitMismatch},
		{name: "split over", typ: ResolutionSplitCustom, client: "2500", vendor: "2500.01", wantErr: ErrSplitMismatch},
		{name: "split all to client", typ: ResolutionSplitCustom, client: "5000", vendor: "0"},
		{name: "split negative share", typ: ResolutionSplitCustom, client: "-1000", vendor: "6000", wantErr: ErrInvalidResolutionAmount},
		{name: "split sub-cent share", typ: ResolutionSplitCustom, client: "2000.005", vendor: "2999.995", wantErr: ErrInvalidResolutionAmount},
		{name: "refund full", typ: ResolutionRefundClient, client: "5000", vendor: "0"},
		{name: "refund partial", typ: ResolutionRefundClient, client: "4000", vendor: "0", wantErr: ErrInvalidResolutionAmount},
		{name: "refund with vendor share", typ: ResolutionRefundClient, client: "5000", vendor: "1", wantErr: ErrInvalidResolutionAmount},
		{name: "release full", typ: ResolutionReleaseVendor, client: "0", vendor: "5000"},
		{name: "release with client share", typ: ResolutionReleaseVendor, client: "1000", vendor: "4000", wantErr: ErrInvalidResolutionAmount},
		{name: "unknown type", typ: ResolutionType("COIN_FLIP"), client: "2500", vendor: "2500", wantErr: ErrInvalidResolutionType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResolution(tt.typ, escrow, decimal.RequireFromString(tt.client), decimal.RequireFromString(tt.vendor))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
