package handlers

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"encore/services"
)

// ResolveHandler handles the query-to-cached-track endpoint.
type ResolveHandler struct {
	pipeline services.Pipeline
}

// NewResolveHandler creates a new resolve handler
func NewResolveHandler(p services.Pipeline) *ResolveHandler {
	return &ResolveHandler{pipeline: p}
}

// Resolve turns ?song=&artist= into a cached track's metadata record.
func (h *ResolveHandler) Resolve(c *gin.Context) {
	song := c.Query("song")
	artist := c.Query("artist")

	if song == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "query parameter 'song' is required",
		})
		return
	}

	meta, err := h.pipeline.Resolve(c.Request.Context(), song, artist)
	if err != nil {
		if errors.Is(err, services.ErrNoMedia) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "no media found",
			})
			return
		}

		var stageErr *services.StageError
		if errors.As(err, &stageErr) {
			// Dependency detail stays in the body for diagnosability.
			log.Error("pipeline failed", "stage", stageErr.Stage, "song", song, "artist", artist, "err", stageErr.Err)
			c.JSON(http.StatusBadGateway, gin.H{
				"error": stageErr.Error(),
			})
			return
		}

		log.Error("resolve failed", "song", song, "artist", artist, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, meta)
}
