// README: Settlement handlers for ledger reads, refunds, payouts and the incentive budget.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/incentive"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/types"
)

type SettlementHandler struct {
	settlement *settlement.Service
	incentives *incentive.Service
}

func NewSettlementHandler(svc *settlement.Service, incentives *incentive.Service) *SettlementHandler {
	return &SettlementHandler{settlement: svc, incentives: incentives}
}

func (h *SettlementHandler) Ledger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.settlement.Entries(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if len(entries) == 0 {
		writeError(c, http.StatusNotFound, settlement.ErrNotSettled.Error())
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"entries": entries,
		"net":     settlement.SumEntries(entries),
	})
}

type refundReq struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *SettlementHandler) Refund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req refundReq
	if !bind(c, &req) {
		return
	}
	r, err := h.settlement.RefundOrder(c.Request.Context(), id, req.Amount, req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

type payoutReq struct {
	OrderIDs []string `json:"order_ids"`
}

func (h *SettlementHandler) Payouts(c *gin.Context) {
	var req payoutReq
	if !bind(c, &req) {
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(c, http.StatusBadRequest, "no orders")
		return
	}
	ids := make([]types.ID, 0, len(req.OrderIDs))
	for _, id := range req.OrderIDs {
		if !isValidID(id) {
			writeError(c, http.StatusBadRequest, "invalid order id")
			return
		}
		ids = append(ids, types.ID(id))
	}
	payouts, err := h.settlement.PayoutOrders(c.Request.Context(), ids)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"payouts": payouts})
}

func (h *SettlementHandler) Budget(c *gin.Context) {
	b, err := h.incentives.Budget(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"budget": b, "remaining": b.Remaining()})
}
