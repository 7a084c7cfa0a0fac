package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ResolutionType is the outcome applied to a disputed milestone.
type ResolutionType string

const (
	ResolutionRefundClient  ResolutionType = "REFUND_CLIENT"
	ResolutionReleaseVendor ResolutionType = "RELEASE_VENDOR"
	ResolutionSplitCustom   ResolutionType = "SPLIT_CUSTOM"
)

// IsValid reports whether t is a known resolution type.
func (t ResolutionType) IsValid() bool {
	switch t {
	case ResolutionRefundClient, ResolutionReleaseVendor, ResolutionSplitCustom:
		return true
	}
	return false
}

// Resolution records how a dispute's escrow was divided.
type Resolution struct {
	Type         ResolutionType  `json:"type"`
	ClientAmount decimal.Decimal `json:"client_amount"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	Note         string          `json:"note,omitempty"`
	ResolvedBy   string          `json:"resolved_by"`
	ResolvedAt   time.Time       `json:"resolved_at"`
}

// ValidateResolution checks that the shares of a resolution divide escrow
// exactly. It has no side effects and must pass before anything is written.
func ValidateResolution(resolutionType ResolutionType, escrow, clientAmount, vendorAmount decimal.Decimal) error {
	if !resolutionType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidResolutionType, resolutionType)
	}

	if clientAmount.IsNegative() || vendorAmount.IsNegative() {
		return fmt.Errorf("%w: shares must not be negative", ErrInvalidResolutionAmount)
	}

	if !hasCentPrecision(clientAmount) || !hasCentPrecision(vendorAmount) {
		return fmt.Errorf("%w: shares must have at most two decimal places", ErrInvalidResolutionAmount)
	}

	switch resolutionType {
	case ResolutionRefundClient:
		if !clientAmount.Equal(escrow) || !vendorAmount.IsZero() {
			return fmt.Errorf("%w: refund must return %s to the client and nothing to the vendor",
				ErrInvalidResolutionAmount, escrow.StringFixed(2))
		}
	case ResolutionReleaseVendor:
		if !vendorAmount.Equal(escrow) || !clientAmount.IsZero() {
			return fmt.Errorf("%w: release must pay %s to the vendor and nothing to the client",
				ErrInvalidResolutionAmount, escrow.StringFixed(2))
		}
	case ResolutionSplitCustom:
		if sum := clientAmount.Add(vendorAmount); !sum.Equal(escrow) {
			return fmt.Errorf("%w: %s + %s = %s, escrow is %s", ErrSplitMismatch,
				clientAmount.StringFixed(2), vendorAmount.StringFixed(2), sum.StringFixed(2), escrow.StringFixed(2))
		}
	}

	return nil
}

func hasCentPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
