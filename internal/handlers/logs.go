package handlers

import (
	"net/http"
	"time"

	"github.com/lukezbihlyj/icomfort-go/internal/history"

	"github.com/gin-gonic/gin"
)

// @Summary      List history events
// @Description  Filter with from/to (RFC3339) and type (TELEMETRY, COMMAND, RECONNECT, ERROR)
// @Tags         logs
// @Produce      json
// @Param        from  query     string  false  "Inclusive lower bound, RFC3339"
// @Param        to    query     string  false  "Inclusive upper bound, RFC3339"
// @Param        type  query     string  false  "Event type"
// @Success      200   {array}   history.Event
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	var f history.Filter

	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: " + err.Error()})
			return
		}
		f.From = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: " + err.Error()})
			return
		}
		f.To = t
	}
	f.Type = c.Query("type")

	events, err := h.services.List(c.Request.Context(), f)
	if err != nil {
		h.log.Errorw("logs_list_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs"})
		return
	}
	c.JSON(http.StatusOK, events)
}
