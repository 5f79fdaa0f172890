package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tamtam29/flashsale-app/internal/app"
	"github.com/tamtam29/flashsale-app/internal/domain"
)

// SaleReader serves the status and per-user lookup endpoints.
type SaleReader interface {
	SaleStatus(ctx context.Context, saleID string) (app.SaleStatus, error)
	AllSaleStatuses(ctx context.Context) ([]app.SaleStatus, error)
	UserPurchase(ctx context.Context, saleID, userID string) (app.UserPurchase, error)
}

// SaleAPI bundles what the /sales subtree needs.
type SaleAPI interface {
	SaleReader
	PurchaseAttempter
}

// HandleListSales serves GET /sales.
func HandleListSales(svc SaleReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		statuses, err := svc.AllSaleStatuses(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "service temporarily unavailable")
			return
		}

		out := make([]saleStatusResponse, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, toSaleStatusResponse(st))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleSales routes the /sales/{id}... subtree:
//
//	GET  /sales/{id}                       sale status
//	POST /sales/{id}/purchase              purchase attempt
//	GET  /sales/{id}/purchase/{userId}     per-user purchase lookup
func HandleSales(svc SaleAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/sales/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")

		switch {
		case len(parts) == 1 && parts[0] != "":
			handleSaleStatus(svc, parts[0])(w, r)
		case len(parts) == 2 && parts[1] == "purchase":
			handlePurchase(svc, parts[0])(w, r)
		case len(parts) == 3 && parts[1] == "purchase":
			handleUserPurchase(svc, parts[0], parts[2])(w, r)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

type saleStatusResponse struct {
	SaleID         string    `json:"saleId"`
	Name           string    `json:"name"`
	RemainingStock int       `json:"remainingStock"`
	TotalSold      int       `json:"totalSold"`
	SaleActive     bool      `json:"saleActive"`
	StartsAt       time.Time `json:"startsAt"`
	EndsAt         time.Time `json:"endsAt"`
	Status         string    `json:"status"`
}

func toSaleStatusResponse(st app.SaleStatus) saleStatusResponse {
	return saleStatusResponse{
		SaleID:         st.SaleID,
		Name:           st.Name,
		RemainingStock: st.RemainingStock,
		TotalSold:      st.TotalSold,
		SaleActive:     st.SaleActive,
		StartsAt:       st.StartsAt,
		EndsAt:         st.EndsAt,
		Status:         st.Status,
	}
}

func handleSaleStatus(svc SaleReader, saleID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		status, err := svc.SaleStatus(r.Context(), saleID)
		if err != nil {
			writeSaleLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSaleStatusResponse(status))
	}
}

type userPurchaseResponse struct {
	Purchased bool    `json:"purchased"`
	OrderID   *string `json:"orderId"`
	Status    string  `json:"status"`
}

func handleUserPurchase(svc SaleReader, saleID, userID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
		if userID == "" {
			writeError(w, http.StatusBadRequest, codeUserIDRequired, "userId is required")
			return
		}

		purchase, err := svc.UserPurchase(r.Context(), saleID, userID)
		if err != nil {
			writeSaleLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, userPurchaseResponse{
			Purchased: purchase.Purchased,
			OrderID:   purchase.OrderID,
			Status:    purchase.Status,
		})
	}
}

func writeSaleLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSaleNotFound):
		writeError(w, http.StatusNotFound, codeSaleNotFound, "sale not found")
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, "invalid sale id")
	default:
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "service temporarily unavailable")
	}
}
