package fleet

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsAllowMethods are the methods a preflight is told the fleet accepts.
const corsAllowMethods = "GET,HEAD,PUT,PATCH,POST,DELETE"

// cors lets browser pages on any origin call the fleet. Preflight requests are answered
// here with a 204 and stop, so they reach neither the capture nor the dispatch endpoint.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")

		if c.Request.Method != http.MethodOptions || c.GetHeader("Access-Control-Request-Method") == "" {
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
			h.Add("Vary", "Access-Control-Request-Headers")
		}
		h.Set("Content-Length", "0")
		c.AbortWithStatus(http.StatusNoContent)
	}
}
