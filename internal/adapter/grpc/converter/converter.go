package converter

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iho/goescrow/internal/domain"
)

// ErrFieldType is returned when a request field has the wrong kind.
var ErrFieldType = errors.New("field has wrong type")

// String returns the string field key of s, or "" when it is absent.
func String(s *structpb.Struct, key string) (string, error) {
	v, ok := field(s, key)
	if !ok {
		return "", nil
	}

	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrFieldType, key)
	}

	return str.StringValue, nil
}

// Decimal parses a decimal field. Amounts travel as strings so that no
// float ever touches money; a missing field yields zero.
func Decimal(s *structpb.Struct, key string) (decimal.Decimal, error) {
	str, err := String(s, key)
	if err != nil {
		return decimal.Zero, err
	}
	if str == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(str)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a decimal", ErrFieldType, key)
	}

	return d, nil
}

// Metadata returns the nested struct field key as a plain map.
func Metadata(s *structpb.Struct, key string) (map[string]any, error) {
	v, ok := field(s, key)
	if !ok {
		return nil, nil
	}

	nested, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrFieldType, key)
	}

	return nested.StructValue.AsMap(), nil
}

// TransactionToStruct converts domain.Transaction to a struct message.
func TransactionToStruct(t *domain.Transaction) map[string]any {
	if t == nil {
		return nil
	}

	m := map[string]any{
		"id":              t.ID,
		"type":            string(t.Type),
		"amount":          t.Amount.StringFixed(2),
		"currency":        t.Currency,
		"status":          string(t.Status),
		"idempotency_key": t.IdempotencyKey,
		"created_at":      formatTime(t.CreatedAt),
	}

	optional(m, "from_account_id", t.FromAccountID)
	optional(m, "to_account_id", t.ToAccountID)
	optional(m, "milestone_id", t.MilestoneID)
	optional(m, "reverses_id", t.ReversesID)

	if t.Reason != "" {
		m["reason"] = t.Reason
	}
	if len(t.Metadata) > 0 {
		m["metadata"] = t.Metadata
	}
	if t.CompletedAt != nil {
		m["completed_at"] = formatTime(*t.CompletedAt)
	}

	return m
}

// TransactionsToList converts transactions to a list value.
func TransactionsToList(txs []*domain.Transaction) []any {
	list := make([]any, 0, len(txs))
	for _, t := range txs {
		list = append(list, TransactionToStruct(t))
	}
	return list
}

// MilestoneToStruct converts domain.Milestone to a struct message.
func MilestoneToStruct(m *domain.Milestone) map[string]any {
	if m == nil {
		return nil
	}

	out := map[string]any{
		"id":         m.ID,
		"project_id": m.ProjectID,
		"title":      m.Title,
		"amount":     m.Amount.StringFixed(2),
		"released":   m.Released.StringFixed(2),
		"refunded":   m.Refunded.StringFixed(2),
		"held":       m.Held().StringFixed(2),
		"currency":   m.Currency,
		"status":     string(m.Status),
		"is_paid":    m.IsPaid,
		"version":    m.Version,
		"updated_at": formatTime(m.UpdatedAt),
	}

	optional(out, "frozen_by", m.FrozenBy)

	return out
}

// PaymentRequestToStruct converts domain.PaymentRequest to a struct message.
func PaymentRequestToStruct(p *domain.PaymentRequest) map[string]any {
	if p == nil {
		return nil
	}

	out := map[string]any{
		"id":           p.ID,
		"milestone_id": p.MilestoneID,
		"amount":       p.Amount.StringFixed(2),
		"currency":     p.Currency,
		"status":       string(p.Status),
		"requested_by": p.RequestedBy,
		"requested_at": formatTime(p.RequestedAt),
	}

	if p.DecidedBy != "" {
		out["decided_by"] = p.DecidedBy
	}
	optional(out, "transaction_id", p.TransactionID)
	if p.CompletedAt != nil {
		out["completed_at"] = formatTime(*p.CompletedAt)
	}

	return out
}

// DisputeToStruct converts domain.Dispute to a struct message.
func DisputeToStruct(d *domain.Dispute) map[string]any {
	if d == nil {
		return nil
	}

	out := map[string]any{
		"id":            d.ID,
		"milestone_id":  d.MilestoneID,
		"project_id":    d.ProjectID,
		"plaintiff_id":  d.PlaintiffID,
		"defendant_id":  d.DefendantID,
		"reason":        d.Reason,
		"escrow_amount": d.EscrowAmount.StringFixed(2),
		"currency":      d.Currency,
		"status":        string(d.Status),
		"created_at":    formatTime(d.CreatedAt),
	}

	if r := d.Resolution; r != nil {
		out["resolution"] = map[string]any{
			"type":          string(r.Type),
			"client_amount": r.ClientAmount.StringFixed(2),
			"vendor_amount": r.VendorAmount.StringFixed(2),
			"note":          r.Note,
			"resolved_by":   r.ResolvedBy,
			"resolved_at":   formatTime(r.ResolvedAt),
		}
	}

	return out
}

// ToStruct builds the response message. Values must be ones
// structpb.NewValue accepts.
func ToStruct(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(normalize(m))
}

// normalize turns nested typed maps and slices into the generic shapes
// structpb understands.
func normalize(m map[string]any) map[string]any {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			m[k] = normalize(val)
		case []any:
			for i, item := range val {
				if nested, ok := item.(map[string]any); ok {
					val[i] = normalize(nested)
				}
			}
		case domain.JSON:
			m[k] = normalize(map[string]any(val))
		}
	}
	return m
}

func field(s *structpb.Struct, key string) (*structpb.Value, bool) {
	if s == nil {
		return nil, false
	}

	v, ok := s.GetFields()[key]
	if !ok {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}

	return v, true
}

func optional(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
