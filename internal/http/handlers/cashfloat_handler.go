// README: Cash float handlers: balance, remittance, reconciliation, trust-limit refresh.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/cashfloat"
)

type CashFloatHandler struct {
	cash *cashfloat.Service
}

func NewCashFloatHandler(svc *cashfloat.Service) *CashFloatHandler {
	return &CashFloatHandler{cash: svc}
}

func (h *CashFloatHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	f, err := h.cash.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, f)
}

type amountReq struct {
	Amount int64 `json:"amount"`
}

func (h *CashFloatHandler) Remit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req amountReq
	if !bind(c, &req) {
		return
	}
	f, err := h.cash.Remit(c.Request.Context(), id, req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, f)
}

type reconcileReq struct {
	Reported int64 `json:"reported"`
}

// Reconcile never fails on a mismatch; the alert rides along in the body.
func (h *CashFloatHandler) Reconcile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reconcileReq
	if !bind(c, &req) {
		return
	}
	f, alert, err := h.cash.Reconcile(c.Request.Context(), id, req.Reported)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"float": f, "alert": alert})
}

type trustReq struct {
	CompletedDeliveries  int `json:"completed_deliveries"`
	Reconciliations      int `json:"reconciliations"`
	CleanReconciliations int `json:"clean_reconciliations"`
}

func (h *CashFloatHandler) RefreshTrust(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req trustReq
	if !bind(c, &req) {
		return
	}
	f, err := h.cash.RefreshTrustLimit(c.Request.Context(), id, cashfloat.DriverHistory{
		CompletedDeliveries:  req.CompletedDeliveries,
		Reconciliations:      req.Reconciliations,
		CleanReconciliations: req.CleanReconciliations,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, f)
}
