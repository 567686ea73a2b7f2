package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lrstanley/go-ytdlp"

	"encore/types"
)

// ProgressFunc receives download progress as a 0-100 percentage.
type ProgressFunc func(percent float64)

// YTDLPOptions configure the yt-dlp backed audio fetcher.
type YTDLPOptions struct {
	// AudioQuality is the target mp3 bitrate, e.g. "128K".
	AudioQuality string
	// CookieFile is an optional Netscape-format cookie jar for age/region
	// restricted media.
	CookieFile string
	// Progress, when non-nil, is called with download percentages.
	Progress ProgressFunc
}

// ytdlpFetcher implements AudioFetcher by downloading the best audio stream
// and transcoding it to a single-bitrate mp3 at the destination path.
type ytdlpFetcher struct {
	opts   YTDLPOptions
	logger *log.Logger
}

// NewYTDLPFetcher creates a yt-dlp backed fetcher, installing or updating the
// yt-dlp binary if it is not already available.
func NewYTDLPFetcher(ctx context.Context, opts YTDLPOptions, logger *log.Logger) (AudioFetcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opts.AudioQuality == "" {
		opts.AudioQuality = "128K"
	}
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return nil, fmt.Errorf("install yt-dlp: %w", err)
	}
	return &ytdlpFetcher{opts: opts, logger: logger.With("component", "fetcher")}, nil
}

func (f *ytdlpFetcher) Fetch(ctx context.Context, ref *types.MediaReference, dest string) (int, error) {
	base := strings.TrimSuffix(dest, types.ArtifactAudio.Ext())

	dl := ytdlp.New().
		NoPlaylist().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality(f.opts.AudioQuality).
		PrintJSON().
		Output(base + ".%(ext)s")

	if f.opts.CookieFile != "" {
		dl = dl.Cookies(f.opts.CookieFile)
	}
	if f.opts.Progress != nil {
		dl = dl.ProgressFunc(500*time.Millisecond, func(update ytdlp.ProgressUpdate) {
			f.opts.Progress(update.Percent())
		})
	}

	result, err := dl.Run(ctx, ref.WatchURL())
	if err != nil {
		return 0, fmt.Errorf("yt-dlp download %s: %w", ref.VideoID, err)
	}

	// The mp3 post-processor replaces the extension in the output template,
	// so the finished file must be exactly dest.
	if _, err := os.Stat(dest); err != nil {
		return 0, fmt.Errorf("yt-dlp produced no audio at %s: %w", dest, err)
	}

	duration := parseDuration(result.Stdout)
	f.logger.Debug("audio fetched", "video", ref.VideoID, "duration", duration)
	return duration, nil
}

// parseDuration pulls the duration field out of the --print-json info line.
// A missing or unparsable duration is reported as 0, never an error.
func parseDuration(stdout string) int {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var info struct {
			Duration float64 `json:"duration"`
		}
		if err := json.Unmarshal([]byte(line), &info); err == nil && info.Duration > 0 {
			return int(info.Duration)
		}
	}
	return 0
}
