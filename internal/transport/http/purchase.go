package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tamtam29/flashsale-app/internal/app"
	"github.com/tamtam29/flashsale-app/internal/domain"
)

// PurchaseAttempter is the minimal interface needed to admit a purchase.
type PurchaseAttempter interface {
	AttemptPurchase(ctx context.Context, saleID, userID string) (app.PurchaseResult, error)
}

type purchaseRequest struct {
	UserID string `json:"userId"`
}

type purchaseResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func handlePurchase(svc PurchaseAttempter, saleID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req purchaseRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, codeUserIDRequired, "userId is required")
			return
		}

		result, err := svc.AttemptPurchase(r.Context(), saleID, req.UserID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrSaleNotFound):
				writeError(w, http.StatusNotFound, codeSaleNotFound, "sale not found")
			case errors.Is(err, domain.ErrInvalidID):
				writeError(w, http.StatusBadRequest, codeInvalidID, "invalid sale id")
			case errors.Is(err, domain.ErrSaleNotActive):
				writeError(w, http.StatusBadRequest, codeSaleNotActive, "sale is not currently active")
			default:
				// Infrastructure failure in the critical path: generic,
				// retryable.
				writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "service temporarily unavailable")
			}
			return
		}

		writeJSON(w, http.StatusOK, purchaseResponse{
			Success: result.Success,
			Status:  result.Status,
			Message: result.Message,
		})
	}
}
