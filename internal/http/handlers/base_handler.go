// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/cashfloat"
	"tawsil/internal/modules/delivery"
	"tawsil/internal/modules/eta"
	"tawsil/internal/modules/incentive"
	"tawsil/internal/modules/order"
	"tawsil/internal/modules/routing"
	"tawsil/internal/modules/settlement"
	"tawsil/internal/service"
	"tawsil/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type pointReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p pointReq) point() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

// isValidID accepts UUIDs and the short slugs used by external registries.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (types.ID, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(id), true
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto status codes. Anything
// unrecognised is logged by the error middleware and hidden from clients.
func writeServiceError(c *gin.Context, err error) {
	var (
		ve *types.ValidationError
		se *delivery.StateError
		qe *incentive.QuestStateError
		cv routing.ConstraintViolation
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: ve.Reason, Field: ve.Field})
	case errors.Is(err, delivery.ErrNotFound), errors.Is(err, cashfloat.ErrNotFound),
		errors.Is(err, service.ErrUnknownOrder), errors.Is(err, settlement.ErrNotSettled),
		errors.Is(err, order.ErrNotFound), errors.Is(err, incentive.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.As(err, &se), errors.As(err, &cv),
		errors.Is(err, delivery.ErrConflict), errors.Is(err, cashfloat.ErrConflict),
		errors.Is(err, service.ErrCashLimit), errors.Is(err, eta.ErrNoRemainingLegs),
		errors.Is(err, order.ErrConflict), errors.Is(err, order.ErrInvalidState),
		errors.As(err, &qe), errors.Is(err, incentive.ErrConflict), errors.Is(err, service.ErrNotDelivered):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
