package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ParseID parses a positive numeric identifier.
func ParseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id must be a positive integer")
	}
	return id, nil
}

// ParsePage reads a 1-based page number; anything unparsable is page 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// listQuery reads the search and page query parameters shared by the
// table endpoints.
func listQuery(c *gin.Context) (string, int) {
	return strings.TrimSpace(c.Query("search")), ParsePage(c.Query("page"))
}

// pathID parses the named path parameter or writes a 400.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := ParseID(c.Param(name))
	if err != nil {
		ToastError(c, "Invalid request", err.Error())
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": gin.H{name: err.Error()}})
		return 0, false
	}
	return id, true
}
