package adminhttp

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatchbox/internal/model"
)

// parseID extracts and validates the :id path parameter, writing a 400
// response itself and returning ok=false on failure.
func parseID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func wireEvents(events []model.Event) []map[string]any {
	out := make([]map[string]any, len(events))
	for i, e := range events {
		out[i] = e.ToWire()
	}
	return out
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
