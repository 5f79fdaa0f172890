package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tamtam29/flashsale-app/internal/app"
	"github.com/tamtam29/flashsale-app/internal/domain"
)

// SaleResetter is the minimal interface needed by the admin reset endpoint.
type SaleResetter interface {
	ResetSale(ctx context.Context, saleID string) (app.ResetResult, error)
}

type resetResponse struct {
	Reset         bool `json:"reset"`
	DeletedOrders int  `json:"deletedOrders"`
	DeletedAudits int  `json:"deletedAudits"`
}

// HandleAdminReset routes POST /admin/sales/{id}/reset.
func HandleAdminReset(svc SaleResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/admin/sales/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "reset" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		result, err := svc.ResetSale(r.Context(), parts[0])
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrSaleNotFound):
				writeError(w, http.StatusNotFound, codeSaleNotFound, "sale not found")
			case errors.Is(err, domain.ErrInvalidID):
				writeError(w, http.StatusBadRequest, codeInvalidID, "invalid sale id")
			default:
				writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "service temporarily unavailable")
			}
			return
		}

		writeJSON(w, http.StatusOK, resetResponse{
			Reset:         true,
			DeletedOrders: result.DeletedOrders,
			DeletedAudits: result.DeletedAudits,
		})
	}
}
