package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts handles GET /api/products. With available=Yes only products
// in stock are listed.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := product.Filter{InStockOnly: inStockOnly(r.URL.Query().Get("available"))}

	products, err := h.products.List(r.Context(), filter)
	if err != nil {
		internalError(w, r, "List products", err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		h.encodeProduct(&e, p)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func inStockOnly(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}

// GenerateCoupon handles GET /api/coupons/generate.
func (h *Handler) GenerateCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Issue(r.Context())
	if err != nil {
		internalError(w, r, "Issue coupon", err)
		return
	}

	var e jx.Encoder
	encodeCoupon(&e, c)
	writeJSON(w, http.StatusOK, &e)
}
