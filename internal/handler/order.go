package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/user"
)

type completeOrderRequest struct {
	UserID     string
	CouponCode string
}

// decode accepts both the camelCase body and the snake_case body of the
// legacy route. A null couponCode means no coupon.
func (req *completeOrderRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, k string) error {
		switch k {
		case "userId", "user_id":
			s, err := d.Str()
			req.UserID = s
			return err
		case "couponCode", "coupon_code":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			req.CouponCode = s
			return err
		default:
			return d.Skip()
		}
	})
}

// CompleteOrder handles POST /api/orders/complete.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req completeOrderRequest
	if err := readBody(w, r, req.decode); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := key.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	res, err := h.checkout.CompleteOrder(r.Context(), checkout.Request{
		UserID:     userID,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		status, msg := checkoutStatus(err)
		if status >= http.StatusInternalServerError {
			zctx.From(r.Context()).Error("Complete order", zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	var e jx.Encoder
	encodeResult(&e, res)
	writeJSON(w, http.StatusOK, &e)
}

// checkoutStatus maps a CompleteOrder error to a status code and a message
// safe to return to the client.
func checkoutStatus(err error) (int, string) {
	var (
		notFound *checkout.NotFoundError
		stock    *checkout.InsufficientStockError
		invalid  *checkout.InvalidStateError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &stock):
		return http.StatusConflict, stock.Error()
	case errors.As(err, &invalid):
		return http.StatusConflict, invalid.Error()
	case errors.Is(err, user.ErrCartModified):
		return http.StatusConflict, user.ErrCartModified.Error()
	case errors.Is(err, checkout.ErrCommitFailed):
		return http.StatusInternalServerError, "order could not be committed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// OrderSummary handles GET /api/orders/summary.
func (h *Handler) OrderSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.summaries.Summarize(r.Context())
	if err != nil {
		internalError(w, r, "Summarize orders", err)
		return
	}

	var e jx.Encoder
	encodeSummary(&e, s)
	writeJSON(w, http.StatusOK, &e)
}
