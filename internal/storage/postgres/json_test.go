package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

func TestSnapshotsJSON(t *testing.T) {
	in := []product.Snapshot{
		{ID: key.MustParse("P1"), Name: "Keyboard", Price: decimal.RequireFromString("99.90"), Stock: 4, Images: []string{"a.jpg"}},
		{ID: key.MustParse("P2"), Name: "Mouse", Price: decimal.NewFromInt(5)},
	}

	data, err := encodeSnapshots(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"images":[]`)

	out, err := decodeSnapshots(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].ID, out[0].ID)
	assert.True(t, in[0].Price.Equal(out[0].Price))
	assert.Equal(t, []string{"a.jpg"}, out[0].Images)
	assert.Empty(t, out[1].Images)

	empty, err := encodeSnapshots(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty))
}

func TestSnapshotsJSON_BadKey(t *testing.T) {
	_, err := decodeSnapshots([]byte(`[{"id":"  ","name":"x","price":"1"}]`))
	require.Error(t, err)
}

func TestSummariesJSON(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []user.OrderSummary{
		{
			OrderID:       key.MustParse("O1"),
			TotalPrice:    decimal.NewFromInt(135),
			CouponCode:    "SAVE10",
			DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(15)),
			CreatedAt:     created,
		},
		{OrderID: key.MustParse("O2"), TotalPrice: decimal.NewFromInt(20), CreatedAt: created},
	}

	data, err := encodeSummaries(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"couponCode":null`)

	out, err := decodeSummaries(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "SAVE10", out[0].CouponCode)
	assert.True(t, out[0].DiscountPrice.Valid)
	assert.Empty(t, out[1].CouponCode)
	assert.False(t, out[1].DiscountPrice.Valid)
	assert.True(t, created.Equal(out[1].CreatedAt))
}
