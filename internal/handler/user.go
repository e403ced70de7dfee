package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// GetUser handles GET /api/users/{userID}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathKey(r, "userID", "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	h.writeUser(w, r, id)
}

func (h *Handler) writeUser(w http.ResponseWriter, r *http.Request, id key.Key) {
	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		internalError(w, r, "Get user", err)
		return
	}

	var e jx.Encoder
	h.encodeUser(&e, u)
	writeJSON(w, http.StatusOK, &e)
}

type addToCartRequest struct {
	UserID    string
	ProductID string
}

func (req *addToCartRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, k string) error {
		switch k {
		case "productId", "product_id":
			s, err := d.Str()
			req.ProductID = s
			return err
		case "user_id":
			s, err := d.Str()
			req.UserID = s
			return err
		default:
			return d.Skip()
		}
	})
}

// AddToCart handles POST /api/users/{userID}/cart. The product is copied
// into the cart as it is now; later catalog changes do not reach it.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := readBody(w, r, req.decode); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s := chi.URLParam(r, "userID"); s != "" {
		req.UserID = s
	}
	userID, err := key.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	productID, err := key.Parse(req.ProductID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	ctx := r.Context()
	p, err := h.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		internalError(w, r, "Get product", err)
		return
	}
	if err := h.users.AddToCart(ctx, userID, p.Snapshot()); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		internalError(w, r, "Add to cart", err)
		return
	}

	h.writeUser(w, r, userID)
}

// RemoveFromCart handles DELETE /api/users/{userID}/cart/{productID}.
// One unit of the product is removed per call.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, err := key.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	productID, err := key.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "product id is required")
		return
	}

	switch err := h.users.RemoveFromCart(r.Context(), userID, productID); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, user.ErrNotInCart):
		writeError(w, http.StatusNotFound, "product not in cart")
	case errors.Is(err, user.ErrCartModified):
		writeError(w, http.StatusConflict, user.ErrCartModified.Error())
	default:
		internalError(w, r, "Remove from cart", err)
	}
}
