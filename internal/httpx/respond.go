package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/inventorynest/shop-orders/internal/auth"
	"github.com/inventorynest/shop-orders/internal/cart"
	"github.com/inventorynest/shop-orders/internal/inventory"
	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/orders"
)

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorResp{Error: kind, Message: msg})
}

// decodeBody decodes an optional JSON body; an empty body leaves v as is.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeDomainError maps every error kind the services return to a status
// code. Anything unrecognised is logged and reported as a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResp{Message: err.Error()}
	code := http.StatusInternalServerError

	switch {
	case errors.Is(err, orders.ErrInsufficientStock):
		code, resp.Error = http.StatusConflict, "insufficient_stock"
		if se, ok := inventory.AsShortage(err); ok {
			resp.Details = se
		}
	case errors.Is(err, orders.ErrConcurrencyConflict):
		code, resp.Error = http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, orders.ErrInvalidTransition):
		code, resp.Error = http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrInvalidQuantity):
		code, resp.Error = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, orders.ErrAmbiguousPurchaser):
		code, resp.Error = http.StatusBadRequest, "ambiguous_purchaser"
	case errors.Is(err, orders.ErrInvalidEmail):
		code, resp.Error = http.StatusBadRequest, "invalid_email"
	case errors.Is(err, orders.ErrEmptyCart):
		code, resp.Error = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, orders.ErrLineNotFound):
		code, resp.Error = http.StatusNotFound, "line_not_found"
	case errors.Is(err, orders.ErrProductNotFound):
		code, resp.Error = http.StatusNotFound, "product_not_found"
	case errors.Is(err, orders.ErrOrderNotFound):
		code, resp.Error = http.StatusNotFound, "order_not_found"
	case errors.Is(err, orders.ErrForbidden):
		code, resp.Error = http.StatusForbidden, "forbidden"
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, cart.ErrNoOwner):
		code, resp.Error = http.StatusUnauthorized, "unauthorized"
	default:
		resp.Error, resp.Message = "internal", "internal error"
		logging.FromContext(r.Context()).Error("request_failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, code, resp)
}
