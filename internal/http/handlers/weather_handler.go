// README: Weather handlers; operations report the current weather of a city.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tawsil/internal/modules/weather"
	"tawsil/internal/types"
)

type WeatherHandler struct {
	weather *weather.Store
}

func NewWeatherHandler(store *weather.Store) *WeatherHandler {
	return &WeatherHandler{weather: store}
}

type weatherReq struct {
	Weather string `json:"weather"`
}

func (h *WeatherHandler) Set(c *gin.Context) {
	city, ok := pathID(c, "city")
	if !ok {
		return
	}
	var req weatherReq
	if !bind(c, &req) {
		return
	}
	if err := h.weather.Set(c.Request.Context(), string(city), types.Weather(req.Weather)); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"city": city, "weather": req.Weather})
}

func (h *WeatherHandler) Get(c *gin.Context) {
	city, ok := pathID(c, "city")
	if !ok {
		return
	}
	w, err := h.weather.Current(c.Request.Context(), string(city))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"city": city, "weather": w})
}
