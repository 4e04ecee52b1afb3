package handlers

import (
	"errors"
	"net/http"

	"github.com/lukezbihlyj/icomfort-go/internal/icomfort"
	"github.com/lukezbihlyj/icomfort-go/internal/service"

	"github.com/gin-gonic/gin"
)

// commandError maps a command failure onto an HTTP status.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrZoneNotFound):
		return http.StatusNotFound
	case errors.Is(err, icomfort.ErrBadParameters):
		return http.StatusBadRequest
	case errors.Is(err, icomfort.ErrUnauthorized):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) commandError(c *gin.Context, op string, err error) {
	h.log.Errorw("command_failed", "op", op, "zone", c.Param("id"), "err", err)
	c.JSON(commandStatus(err), gin.H{"error": err.Error()})
}

// @Summary      List known systems
// @Tags         zones
// @Produce      json
// @Success      200  {array}  icomfort.SystemState
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/systems [get]
// @Security     BearerAuth
func (h *Handler) getSystems(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Systems())
}

// @Summary      List active zones
// @Tags         zones
// @Produce      json
// @Success      200  {array}  icomfort.ZoneState
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/zones [get]
// @Security     BearerAuth
func (h *Handler) getZones(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Zones())
}

// @Summary      Get one active zone
// @Tags         zones
// @Produce      json
// @Param        id   path      string  true  "Zone id (sysId_index)"
// @Success      200  {object}  icomfort.ZoneState
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/zones/{id} [get]
// @Security     BearerAuth
func (h *Handler) getZone(c *gin.Context) {
	zone, ok := h.services.Zone(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "zone not found"})
		return
	}
	c.JSON(http.StatusOK, zone)
}

type modeRequest struct {
	// Mode to set. Allowed: off, heat, cool, heat and cool, emergency heat
	Mode string `json:"mode" binding:"required" example:"heat"`
}

// @Summary      Set zone HVAC mode
// @Tags         zones
// @Accept       json
// @Produce      json
// @Param        id    path      string       true  "Zone id"
// @Param        body  body      modeRequest  true  "Mode payload"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/zones/{id}/mode [post]
// @Security     BearerAuth
func (h *Handler) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.services.SetMode(c.Request.Context(), c.Param("id"), req.Mode); err != nil {
		h.commandError(c, "set_mode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "mode_set", "mode": req.Mode})
}

type temperatureRequest struct {
	// Heating setpoint in Fahrenheit.
	Hsp *float64 `json:"hsp,omitempty" example:"68"`
	// Cooling setpoint in Fahrenheit.
	Csp *float64 `json:"csp,omitempty" example:"74"`
}

// @Summary      Set zone setpoints
// @Tags         zones
// @Accept       json
// @Produce      json
// @Param        id    path      string              true  "Zone id"
// @Param        body  body      temperatureRequest  true  "Setpoints, Fahrenheit"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/zones/{id}/temperature [post]
// @Security     BearerAuth
func (h *Handler) setTemperature(c *gin.Context) {
	var req temperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.services.SetTemperature(c.Request.Context(), c.Param("id"), req.Hsp, req.Csp); err != nil {
		h.commandError(c, "set_temperature", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "setpoints_set"})
}

type fanRequest struct {
	// Fan mode. Allowed: auto, on, circulate
	Mode string `json:"mode" binding:"required" example:"auto"`
}

// @Summary      Set zone fan mode
// @Tags         zones
// @Accept       json
// @Produce      json
// @Param        id    path      string      true  "Zone id"
// @Param        body  body      fanRequest  true  "Fan payload"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/zones/{id}/fan [post]
// @Security     BearerAuth
func (h *Handler) setFan(c *gin.Context) {
	var req fanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.services.SetFan(c.Request.Context(), c.Param("id"), req.Mode); err != nil {
		h.commandError(c, "set_fan", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "fan_set", "mode": req.Mode})
}
