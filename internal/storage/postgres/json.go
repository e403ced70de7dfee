package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// snapshotJSON is the JSONB element of users.cart and orders.items.
type snapshotJSON struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	Images []string        `json:"images"`
}

// summaryJSON is the JSONB element of users.orders_placed.
type summaryJSON struct {
	OrderID       string              `json:"orderId"`
	TotalPrice    decimal.Decimal     `json:"totalPrice"`
	CouponCode    *string             `json:"couponCode"`
	DiscountPrice decimal.NullDecimal `json:"discountPrice"`
	CreatedAt     time.Time           `json:"createdAt"`
}

func encodeSnapshots(items []product.Snapshot) ([]byte, error) {
	out := make([]snapshotJSON, len(items))
	for i, s := range items {
		images := s.Images
		if images == nil {
			images = []string{}
		}
		out[i] = snapshotJSON{
			ID:     s.ID.String(),
			Name:   s.Name,
			Price:  s.Price,
			Stock:  s.Stock,
			Images: images,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshots: %w", err)
	}
	return data, nil
}

func decodeSnapshots(data []byte) ([]product.Snapshot, error) {
	var in []snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshots: %w", err)
	}
	out := make([]product.Snapshot, len(in))
	for i, s := range in {
		id, err := parseKey("snapshot id", s.ID)
		if err != nil {
			return nil, err
		}
		out[i] = product.Snapshot{
			ID:     id,
			Name:   s.Name,
			Price:  s.Price,
			Stock:  s.Stock,
			Images: s.Images,
		}
	}
	return out, nil
}

func encodeSummaries(in []user.OrderSummary) ([]byte, error) {
	out := make([]summaryJSON, len(in))
	for i, s := range in {
		out[i] = summaryJSON{
			OrderID:       s.OrderID.String(),
			TotalPrice:    s.TotalPrice,
			CouponCode:    nullString(s.CouponCode),
			DiscountPrice: s.DiscountPrice,
			CreatedAt:     s.CreatedAt.UTC(),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling order summaries: %w", err)
	}
	return data, nil
}

func decodeSummaries(data []byte) ([]user.OrderSummary, error) {
	var in []summaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unmarshaling order summaries: %w", err)
	}
	out := make([]user.OrderSummary, len(in))
	for i, s := range in {
		id, err := parseKey("order id", s.OrderID)
		if err != nil {
			return nil, err
		}
		out[i] = user.OrderSummary{
			OrderID:       id,
			TotalPrice:    s.TotalPrice,
			CouponCode:    derefString(s.CouponCode),
			DiscountPrice: s.DiscountPrice,
			CreatedAt:     s.CreatedAt,
		}
	}
	return out, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
