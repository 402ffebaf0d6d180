package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"mount_modeling/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339, 'YYYY-MM-DD HH:MM:SS' or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339, 'YYYY-MM-DD HH:MM:SS' or YYYY-MM-DD"
	errListLogs    = "failed to load logs"
)

var (
	queryTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

	errQueryTime = errors.New("unrecognized time")
)

// @Summary      List model log events
// @Description  Filter persisted model log events by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). A date-only 'to' is end-of-day inclusive.
// @Tags         logs
// @Produce      json
// @Param        from  query   string  false  "Start of range"  example(2026-03-01)
// @Param        to    query   string  false  "End of range. Date-only treated as end of day."  example(2026-03-31)
// @Param        type  query   string  false  "Event type"  Enums(RUN_START,RUN_FINISH,RUN_CANCEL,POINT,MODEL,CONNECTION,ERROR)
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	filter, msg := logFilterFromQuery(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	events, err := h.services.EventLog.List(c.Request.Context(), filter)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
	case service.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errListLogs, "logs_list_failed", err,
			"from", filter.From, "to", filter.To, "type", filter.Type)
	}
}

// logFilterFromQuery reads from/to/type. The type is only trimmed; the
// service owns its normalization. A non-empty msg is a 400 response.
func logFilterFromQuery(c *gin.Context) (f service.LogFilter, msg string) {
	f.Type = strings.TrimSpace(c.Query("type"))

	if qs := c.Query("from"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			return f, errFromInvalid
		}
		f.From = t
	}
	if qs := c.Query("to"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			return f, errToInvalid
		}
		// date-only: whole day inclusive
		if !strings.ContainsAny(qs, "T ") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = t
	}
	return f, ""
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errQueryTime
}
