package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore/services"
	"encore/types"
)

const testCacheKey = "9b0fff41d91f894fbb03b584575b8664"

// newCacheRouter builds a store with one committed entry and a router
// serving it under /cache/:filename.
func newCacheRouter(t *testing.T, audio []byte, lyrics string) *gin.Engine {
	t.Helper()
	store, err := services.NewCacheStore(t.TempDir(), log.New(io.Discard))
	require.NoError(t, err)

	staged := store.StagePath(testCacheKey, ".mp3")
	require.NoError(t, os.WriteFile(staged, audio, 0o644))
	require.NoError(t, store.CommitEntry(testCacheKey, staged, lyrics, &types.TrackMetadata{
		Artist:   "Ed Sheeran",
		Title:    "Shape of You",
		Duration: 233,
		AudioURL: "/cache/" + testCacheKey + ".mp3",
		LyricURL: "/cache/" + testCacheKey + ".lrc",
	}))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/cache/:filename", NewCacheHandler(store).Stream)
	return r
}

func TestStreamArtifacts(t *testing.T) {
	audio := []byte("fake mp3 payload bytes")
	r := newCacheRouter(t, audio, "[00:01.00] la la la")

	tests := []struct {
		filename        string
		wantContentType string
		wantBody        string
	}{
		{testCacheKey + ".mp3", "audio/mpeg", string(audio)},
		{testCacheKey + ".lrc", "text/plain; charset=utf-8", "[00:01.00] la la la"},
		{testCacheKey + ".json", "application/json", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cache/"+tt.filename, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantContentType, w.Header().Get("Content-Type"))
			assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), "Shape of You")
			}
		})
	}
}

func TestStreamRejectsBadFilenames(t *testing.T) {
	r := newCacheRouter(t, []byte("audio"), "")

	for _, filename := range []string{
		"nope.mp3",                       // not a hex key
		testCacheKey + ".exe",            // unknown extension
		testCacheKey,                     // no extension
		"..%2f..%2fetc%2fpasswd",         // traversal attempt
		testCacheKey + "extra-chars.mp3", // wrong key length
	} {
		req := httptest.NewRequest(http.MethodGet, "/cache/"+filename, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, "filename %q", filename)
	}
}

func TestStreamMissingEntry(t *testing.T) {
	r := newCacheRouter(t, []byte("audio"), "")

	req := httptest.NewRequest(http.MethodGet, "/cache/ffffffffffffffffffffffffffffffff.mp3", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "file not found")
}

func TestStreamRangeRequests(t *testing.T) {
	audio := []byte("0123456789abcdef")
	r := newCacheRouter(t, audio, "")

	tests := []struct {
		name        string
		rangeHeader string
		wantStatus  int
		wantBody    string
		wantRange   string
	}{
		{"prefix", "bytes=0-3", http.StatusPartialContent, "0123", "bytes 0-3/16"},
		{"middle", "bytes=4-7", http.StatusPartialContent, "4567", "bytes 4-7/16"},
		{"open ended", "bytes=10-", http.StatusPartialContent, "abcdef", "bytes 10-15/16"},
		{"suffix", "bytes=-4", http.StatusPartialContent, "cdef", "bytes 12-15/16"},
		{"suffix longer than file", "bytes=-999", http.StatusPartialContent, "0123456789abcdef", "bytes 0-15/16"},
		{"zero suffix", "bytes=-0", http.StatusRequestedRangeNotSatisfiable, "", ""},
		{"empty suffix", "bytes=-", http.StatusRequestedRangeNotSatisfiable, "", ""},
		{"end clamped", "bytes=12-999", http.StatusPartialContent, "cdef", "bytes 12-15/16"},
		{"start past eof", "bytes=99-", http.StatusRequestedRangeNotSatisfiable, "", ""},
		{"not bytes", "lines=0-3", http.StatusRequestedRangeNotSatisfiable, "", ""},
		{"garbage", "bytes=x-y", http.StatusRequestedRangeNotSatisfiable, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cache/"+testCacheKey+".mp3", nil)
			req.Header.Set("Range", tt.rangeHeader)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusPartialContent {
				assert.Equal(t, tt.wantBody, w.Body.String())
				assert.Equal(t, tt.wantRange, w.Header().Get("Content-Range"))
			}
		})
	}
}

func TestContentTypeForFile(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeForFile("x.mp3"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentTypeForFile("x.lrc"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentTypeForFile("x.txt"))
	assert.Equal(t, "application/json", ContentTypeForFile("x.json"))
	assert.Equal(t, "application/octet-stream", ContentTypeForFile("x.bin"))
}
