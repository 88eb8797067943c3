// README: Incentive handlers for driver quests and city campaigns.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/incentive"
	"tawsil/internal/types"
)

type IncentiveHandler struct {
	incentives *incentive.Service
}

func NewIncentiveHandler(svc *incentive.Service) *IncentiveHandler {
	return &IncentiveHandler{incentives: svc}
}

type createQuestReq struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Target    int       `json:"target"`
	Reward    int64     `json:"reward"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *IncentiveHandler) CreateQuest(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createQuestReq
	if !bind(c, &req) {
		return
	}
	if !isValidID(req.ID) {
		writeError(c, http.StatusBadRequest, "invalid quest id")
		return
	}
	q, err := h.incentives.CreateQuest(c.Request.Context(), incentive.QuestInput{
		ID:        types.ID(req.ID),
		DriverID:  driverID,
		Name:      req.Name,
		Target:    req.Target,
		Reward:    req.Reward,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, q)
}

func (h *IncentiveHandler) DriverQuests(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok {
		return
	}
	qs, err := h.incentives.DriverQuests(c.Request.Context(), driverID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"quests": qs})
}

func (h *IncentiveHandler) StartQuest(c *gin.Context) {
	h.questAction(c, h.incentives.StartQuest)
}

func (h *IncentiveHandler) ClaimQuest(c *gin.Context) {
	h.questAction(c, h.incentives.ClaimQuest)
}

func (h *IncentiveHandler) questAction(c *gin.Context, fn func(context.Context, types.ID) (incentive.Quest, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := fn(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

type createCampaignReq struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Budget   int64     `json:"budget"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Cities   []string  `json:"cities"`
}

func (h *IncentiveHandler) CreateCampaign(c *gin.Context) {
	var req createCampaignReq
	if !bind(c, &req) {
		return
	}
	if !isValidID(req.ID) {
		writeError(c, http.StatusBadRequest, "invalid campaign id")
		return
	}
	camp, err := h.incentives.CreateCampaign(c.Request.Context(), incentive.CampaignInput{
		ID:       types.ID(req.ID),
		Name:     req.Name,
		Budget:   req.Budget,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Cities:   req.Cities,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, camp)
}

func (h *IncentiveHandler) Campaigns(c *gin.Context) {
	list, err := h.incentives.Campaigns(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"campaigns": list})
}

func (h *IncentiveHandler) Campaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	camp, err := h.incentives.Campaign(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, camp)
}
