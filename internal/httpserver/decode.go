package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v5 "github.com/taoyao-code/solarman-proxy/internal/protocol/v5"
)

// decodeHandler GET /v5/decode?frame=<hex>
func decodeHandler(c *gin.Context) {
	raw := c.Query("frame")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing frame parameter"})
		return
	}
	b, err := v5.ParseHex(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := v5.Decode(b)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v5.NewReport(f))
}
