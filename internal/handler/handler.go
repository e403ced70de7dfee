// Package handler implements the storefront HTTP API.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/summary"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// maxBodySize caps request bodies. Every request body is a small object.
const maxBodySize = 64 << 10

// Checkout completes orders.
type Checkout interface {
	CompleteOrder(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// CouponIssuer creates coupons on demand.
type CouponIssuer interface {
	Issue(ctx context.Context) (*coupon.Coupon, error)
}

// Summarizer aggregates the order ledger.
type Summarizer interface {
	Summarize(ctx context.Context) (*summary.Summary, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image references in responses.
	// When empty, images are returned as stored.
	ImageBaseURL string
}

// Handler serves the API routes over the domain services.
type Handler struct {
	checkout  Checkout
	coupons   CouponIssuer
	summaries Summarizer
	users     user.Repository
	products  product.Repository

	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	checkout Checkout,
	coupons CouponIssuer,
	summaries Summarizer,
	users user.Repository,
	products product.Repository,
) *Handler {
	return &Handler{
		checkout:     checkout,
		coupons:      coupons,
		summaries:    summaries,
		users:        users,
		products:     products,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders/complete", h.CompleteOrder)
		r.Get("/orders/summary", h.OrderSummary)
		r.Get("/coupons/generate", h.GenerateCoupon)
		r.Get("/products", h.ListProducts)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", h.GetUser)
			r.Post("/cart", h.AddToCart)
			r.Delete("/cart/{productID}", h.RemoveFromCart)
		})

		// Paths of the first storefront release, kept for existing clients.
		r.Post("/complete-order", h.CompleteOrder)
		r.Get("/generate-coupon-code", h.GenerateCoupon)
		r.Get("/get-all-products", h.ListProducts)
		r.Get("/get-user-data", h.GetUser)
		r.Post("/add-items-to-cart", h.AddToCart)
	})
}

// readBody parses the request body with fn.
func readBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if err := fn(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// pathKey reads a key from the chi URL parameter, falling back to the query
// parameter used by the legacy routes.
func pathKey(r *http.Request, param, query string) (key.Key, error) {
	s := chi.URLParam(r, param)
	if s == "" {
		s = r.URL.Query().Get(query)
	}
	return key.Parse(s)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, code int, message string) {
	httpmiddleware.WriteError(w, code, message)
}

// internalError logs err and replies 500 without exposing it.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
