package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS returns a configured CORS middleware. origins is a comma-separated
// allowlist; empty means allow all.
func CORS(origins string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	if origins == "" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = strings.Split(origins, ",")
	}
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Range"}

	return cors.New(config)
}
