package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"encore/services"
	"encore/types"
)

// cacheFilePattern matches the only filenames the store can produce: a
// 32-hex cache key plus an artifact extension. Anything else (traversal
// attempts included) is a miss.
var cacheFilePattern = regexp.MustCompile(`^[0-9a-f]{32}\.(mp3|lrc|json)$`)

// CacheHandler streams completed cache artifacts.
type CacheHandler struct {
	store services.CacheStore
}

// NewCacheHandler creates a new cache artifact handler
func NewCacheHandler(store services.CacheStore) *CacheHandler {
	return &CacheHandler{store: store}
}

// Stream serves one cached artifact by filename with the content type
// inferred from its extension, honoring range requests for seeking.
func (h *CacheHandler) Stream(c *gin.Context) {
	filename := strings.TrimPrefix(c.Param("filename"), "/")

	if !cacheFilePattern.MatchString(filename) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	dot := strings.LastIndexByte(filename, '.')
	key, kind := filename[:dot], kindForExt(filename[dot:])

	file, info, err := h.store.OpenArtifact(key, kind)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "file access error",
			"details": err.Error(),
		})
		return
	}
	defer file.Close()

	c.Header("Content-Type", ContentTypeForFile(filename))
	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")

	// Handle range requests for seeking
	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		h.handleRangeRequest(c, file, info.Size(), rangeHeader, filename)
		return
	}

	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		log.Error("streaming artifact failed", "file", filename, "err", err)
	}
}

func kindForExt(ext string) types.ArtifactKind {
	switch ext {
	case ".mp3":
		return types.ArtifactAudio
	case ".lrc":
		return types.ArtifactLyrics
	default:
		return types.ArtifactMetadata
	}
}

// ContentTypeForFile returns the MIME type to serve a cached artifact with.
func ContentTypeForFile(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(filename, ".lrc"), strings.HasSuffix(filename, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(filename, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// handleRangeRequest handles HTTP range requests for efficient seeking
func (h *CacheHandler) handleRangeRequest(c *gin.Context, file *os.File, fileSize int64, rangeHeader string, filename string) {
	// Parse range header (e.g., "bytes=0-1023" or "bytes=1024-")
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	ranges := strings.Split(rangeSpec, "-")

	if len(ranges) != 2 {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	var start, end int64
	var err error

	if ranges[0] == "" {
		// Suffix range: "bytes=-N" means the last N bytes
		var n int64
		n, err = strconv.ParseInt(ranges[1], 10, 64)
		if err != nil || n <= 0 {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if n > fileSize {
			n = fileSize
		}
		start = fileSize - n
		end = fileSize - 1
	} else {
		// Parse start position
		start, err = strconv.ParseInt(ranges[0], 10, 64)
		if err != nil || start < 0 {
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}

		// Parse end position
		if ranges[1] != "" {
			end, err = strconv.ParseInt(ranges[1], 10, 64)
			if err != nil || end < start {
				c.Status(http.StatusRequestedRangeNotSatisfiable)
				return
			}
		} else {
			end = fileSize - 1
		}
	}

	// Validate range bounds
	if start >= fileSize {
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= fileSize {
		end = fileSize - 1
	}

	contentLength := end - start + 1

	// Seek to start position
	if _, err = file.Seek(start, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to seek file",
		})
		return
	}

	// Set partial content headers
	c.Header("Content-Type", ContentTypeForFile(filename))
	c.Header("Content-Length", strconv.FormatInt(contentLength, 10))
	c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")
	c.Status(http.StatusPartialContent)

	// Copy only the requested range
	if _, err = io.CopyN(c.Writer, file, contentLength); err != nil {
		log.Error("streaming range failed", "file", filename, "start", start, "end", end, "err", err)
	}
}
