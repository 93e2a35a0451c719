package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/inventorynest/shop-orders/internal/auth"
	"github.com/inventorynest/shop-orders/internal/cart"
	"github.com/inventorynest/shop-orders/internal/checkout"
	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/orders"
	"github.com/inventorynest/shop-orders/internal/redisx"
)

type Handler struct {
	Store    orders.Store
	Orders   *orders.Service
	Cart     *cart.Service
	Checkout *checkout.Service
	Auth     *auth.Resolver
	Cache    *redisx.StatusCache
	Idem     *redisx.Idempotency

	CheckoutMaxAttempts int
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.Middleware(func(w http.ResponseWriter, req *http.Request, err error) {
			writeDomainError(w, req, err)
		}))

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Post("/cart/items", h.addToCart)
		r.Get("/cart", h.viewCart)
		r.Patch("/cart/items/{productID}", h.updateCartLine)
		r.Delete("/cart/items/{productID}", h.removeCartLine)

		r.Post("/checkout", h.checkout)

		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/advance", h.advanceOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Delete("/orders/{id}", h.deleteOrder)
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var ps []orders.Product
	err := h.Store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		ps, err = tx.ListProducts(ctx)
		return err
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	var p orders.Product
	err := h.Store.WithTx(r.Context(), func(ctx context.Context, tx orders.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, chi.URLParam(r, "id"))
		return err
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// cartOwner resolves the cart for the request, establishing an anonymous
// session first when there is no signed-in user.
func (h *Handler) cartOwner(w http.ResponseWriter, r *http.Request) (auth.Identity, cart.Owner, error) {
	id, err := h.Auth.EnsureSession(w, r, auth.FromContext(r.Context()))
	if err != nil {
		return id, cart.Owner{}, err
	}
	return id, id.CartOwner(), nil
}

type lineReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req lineReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "product_id is required")
		return
	}
	_, owner, err := h.cartOwner(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	line, err := h.Cart.AddLine(r.Context(), owner, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	_, owner, err := h.cartOwner(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	v, err := h.Cart.View(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) updateCartLine(w http.ResponseWriter, r *http.Request) {
	var req lineReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	_, owner, err := h.cartOwner(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	line, err := h.Cart.UpdateLine(r.Context(), owner, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	_, owner, err := h.cartOwner(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Cart.RemoveLine(r.Context(), owner, chi.URLParam(r, "productID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutReq struct {
	GuestEmail string `json:"guest_email"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	id, owner, err := h.cartOwner(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	log := logging.FromContext(ctx)

	key := r.Header.Get("Idempotency-Key")
	if res, ok, err := h.Idem.Lookup(ctx, owner.Key(), key); err != nil {
		log.Warn("idempotency_lookup_failed", zap.Error(err))
	} else if ok {
		w.Header().Set("Idempotent-Replay", "true")
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := h.checkoutWithRetry(ctx, owner.Key(), id.Purchaser(req.GuestEmail))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Idem.Save(ctx, owner.Key(), key, res); err != nil {
		log.Warn("idempotency_save_failed", zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, res)
}

// checkoutWithRetry reruns the whole checkout while it loses to a
// concurrent transaction.
func (h *Handler) checkoutWithRetry(ctx context.Context, owner string, p orders.Purchaser) (orders.BatchResult, error) {
	attempts := h.CheckoutMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		res orders.BatchResult
		err error
	)
	for i := 1; i <= attempts; i++ {
		res, err = h.Checkout.Checkout(ctx, owner, p)
		if !errors.Is(err, orders.ErrConcurrencyConflict) {
			return res, err
		}
		logging.FromContext(ctx).Info("checkout_retry", zap.Int("attempt", i), zap.Error(err))
	}
	return res, err
}

type createOrderReq struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	GuestEmail string `json:"guest_email"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "product_id is required")
		return
	}
	id := auth.FromContext(r.Context())
	o, err := h.Orders.CreateOrder(r.Context(), id.Purchaser(req.GuestEmail), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.Authenticated() {
		writeDomainError(w, r, auth.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	f := orders.ListFilter{Status: orders.Status(q.Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+q.Get("status"))
		return
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", "active must be a boolean")
			return
		}
		f.ActiveOnly = active
	}
	if id.Admin() {
		f.UserID = q.Get("user_id")
	} else {
		f.UserID = id.UserID
	}

	out, err := h.Orders.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.Authenticated() {
		writeDomainError(w, r, auth.ErrUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "id")

	o, cached := h.Cache.Get(r.Context(), orderID)
	if !cached {
		gen, genErr := h.Cache.Generation(r.Context(), orderID)
		var err error
		if o, err = h.Orders.Get(r.Context(), orderID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		if genErr == nil {
			if _, err := h.Cache.Set(r.Context(), o, gen); err != nil {
				logging.FromContext(r.Context()).Warn("order_cache_set_failed", zap.Error(err))
			}
		}
	}
	if !id.Admin() && o.UserID != id.UserID {
		writeDomainError(w, r, orders.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type advanceReq struct {
	Status orders.Status `json:"status"`
}

func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req advanceReq
	if err := decodeBody(r, &req); err != nil || !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be a known order status")
		return
	}
	orderID := chi.URLParam(r, "id")
	o, err := h.Orders.Advance(r.Context(), orderID, req.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.invalidate(r, orderID)
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.Authenticated() {
		writeDomainError(w, r, auth.ErrUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "id")
	current, err := h.Orders.Get(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !id.Admin() && current.UserID != id.UserID {
		writeDomainError(w, r, orders.ErrForbidden)
		return
	}

	by := id.Email
	if by == "" {
		by = id.UserID
	}
	o, err := h.Orders.Cancel(r.Context(), orderID, by)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.invalidate(r, orderID)
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	orderID := chi.URLParam(r, "id")
	if err := h.Orders.Delete(r.Context(), orderID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.invalidate(r, orderID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	id := auth.FromContext(r.Context())
	switch {
	case !id.Authenticated():
		writeDomainError(w, r, auth.ErrUnauthorized)
		return false
	case !id.Admin():
		writeDomainError(w, r, orders.ErrForbidden)
		return false
	}
	return true
}

func (h *Handler) invalidate(r *http.Request, orderID string) {
	if err := h.Cache.Invalidate(r.Context(), orderID); err != nil {
		logging.FromContext(r.Context()).Warn("order_cache_invalidate_failed",
			zap.String("order_id", orderID), zap.Error(err))
	}
}
