package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dhowden/tag"
	"golang.org/x/sync/singleflight"

	"encore/types"
)

// MediaResolver turns a normalized query into a single best media candidate.
type MediaResolver interface {
	Resolve(ctx context.Context, query string) (*types.MediaReference, error)
}

// AudioFetcher retrieves and transcodes the referenced media's audio into
// dest and reports the track duration in seconds (0 when unknown).
type AudioFetcher interface {
	Fetch(ctx context.Context, ref *types.MediaReference, dest string) (int, error)
}

// LyricSource is one step of the lyric fallback chain. An empty string with a
// nil error means "this source has no lyrics for the track".
type LyricSource interface {
	Name() string
	Lyrics(ctx context.Context, ref *types.MediaReference) (string, error)
}

// ProgressSink receives stage events as a pipeline run advances. A nil sink
// disables progress reporting.
type ProgressSink interface {
	Publish(event types.StageEvent)
}

// Pipeline resolves a song/artist query into a completed cache entry and
// returns its metadata record.
type Pipeline interface {
	Resolve(ctx context.Context, song, artist string) (*types.TrackMetadata, error)
}

// PipelineOptions bound the time each external collaborator call may take so
// one slow dependency cannot hang a run indefinitely.
type PipelineOptions struct {
	ResolveTimeout time.Duration
	FetchTimeout   time.Duration
	LyricTimeout   time.Duration
}

func (o *PipelineOptions) setDefaults() {
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = 15 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Minute
	}
	if o.LyricTimeout <= 0 {
		o.LyricTimeout = 15 * time.Second
	}
}

// resolvePipeline implements Pipeline: cache lookup, media resolution, audio
// fetch, best-effort lyrics, atomic persist.
type resolvePipeline struct {
	store        CacheStore
	resolver     MediaResolver
	fetcher      AudioFetcher
	lyricSources []LyricSource
	sink         ProgressSink
	logger       *log.Logger
	opts         PipelineOptions

	// group collapses concurrent identical queries into one in-flight
	// resolution per key, so duplicates never trigger duplicate fetches.
	group singleflight.Group
}

// NewPipeline wires a resolve pipeline from its collaborators. sink may be
// nil; lyricSources may be empty (every entry then caches empty lyrics).
func NewPipeline(store CacheStore, resolver MediaResolver, fetcher AudioFetcher, lyricSources []LyricSource, sink ProgressSink, opts PipelineOptions, logger *log.Logger) Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	opts.setDefaults()
	return &resolvePipeline{
		store:        store,
		resolver:     resolver,
		fetcher:      fetcher,
		lyricSources: lyricSources,
		sink:         sink,
		logger:       logger.With("component", "pipeline"),
		opts:         opts,
	}
}

func (p *resolvePipeline) Resolve(ctx context.Context, song, artist string) (*types.TrackMetadata, error) {
	query := NormalizeQuery(song, artist)
	key := DeriveCacheKey(query)

	p.publish(key, types.StageCheckCache, query, 0, false)

	// Fast path: the metadata record on disk is the authoritative marker for
	// a complete entry. A hit costs one read and zero external calls.
	if p.store.Exists(key) {
		meta, err := p.store.ReadMetadata(key)
		if err == nil {
			hit := *meta
			hit.FromCache = true
			p.publish(key, types.StageComplete, "served from cache", 100, true)
			p.logger.Debug("cache hit", "key", key, "query", query)
			return &hit, nil
		}
		// Unreadable metadata is treated as a miss; the entry is rebuilt.
		p.logger.Warn("cache entry unreadable, re-resolving", "key", key, "err", err)
	}

	// The flight may be shared with callers that joined after it started, so
	// it must not die with the caller that happened to start it. Detach it
	// from the request context; the per-stage timeouts still bound each step.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := p.group.Do(key, func() (interface{}, error) {
		return p.run(flightCtx, key, query)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("joined in-flight resolution", "key", key)
	}

	// Copy so callers sharing a flight cannot mutate each other's response.
	meta := *(v.(*types.TrackMetadata))
	return &meta, nil
}

// run executes the slow path for one key: Resolve -> FetchAudio ->
// FetchLyrics -> Persist. Nothing is written to the store until the audio has
// been durably obtained, so any failure leaves the key fully retryable.
func (p *resolvePipeline) run(ctx context.Context, key, query string) (*types.TrackMetadata, error) {
	p.publish(key, types.StageResolve, query, 0, false)

	rctx, cancel := context.WithTimeout(ctx, p.opts.ResolveTimeout)
	ref, err := p.resolver.Resolve(rctx, query)
	cancel()
	if err != nil {
		p.publish(key, types.StageFailed, err.Error(), 0, false)
		if errors.Is(err, ErrNoMedia) {
			return nil, ErrNoMedia
		}
		return nil, NewStageError("resolve", err)
	}

	p.publish(key, types.StageFetchAudio, ref.Title, 0, false)
	staged := p.store.StagePath(key, types.ArtifactAudio.Ext())

	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	duration, err := p.fetcher.Fetch(fctx, ref, staged)
	cancel()
	if err != nil {
		os.Remove(staged)
		p.publish(key, types.StageFailed, err.Error(), 0, false)
		return nil, NewStageError("fetch_audio", err)
	}
	if duration == 0 {
		duration = ref.Duration
	}

	p.publish(key, types.StageFetchLyrics, ref.Title, 0, false)
	lyrics := p.collectLyrics(ctx, ref)

	artist, title := p.enrichFromTags(staged, ref)

	meta := &types.TrackMetadata{
		Artist:    artist,
		Title:     title,
		Duration:  duration,
		CoverURL:  ref.CoverURL,
		AudioURL:  "/cache/" + key + types.ArtifactAudio.Ext(),
		LyricURL:  "/cache/" + key + types.ArtifactLyrics.Ext(),
		FromCache: false,
	}

	p.publish(key, types.StagePersist, title, 0, false)
	if err := p.store.CommitEntry(key, staged, lyrics, meta); err != nil {
		os.Remove(staged)
		p.publish(key, types.StageFailed, err.Error(), 0, false)
		return nil, NewStageError("persist", err)
	}

	p.publish(key, types.StageComplete, title, 100, false)
	p.logger.Info("resolved and cached", "key", key, "title", title, "artist", artist, "duration", duration, "lyrics", len(lyrics) > 0)
	return meta, nil
}

// collectLyrics walks the fallback chain in order and returns the first
// non-empty text. Source errors are absorbed; lyrics are never fatal.
func (p *resolvePipeline) collectLyrics(ctx context.Context, ref *types.MediaReference) string {
	for _, src := range p.lyricSources {
		sctx, cancel := context.WithTimeout(ctx, p.opts.LyricTimeout)
		text, err := src.Lyrics(sctx, ref)
		cancel()
		if err != nil {
			p.logger.Debug("lyric source failed", "source", src.Name(), "video", ref.VideoID, "err", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			p.logger.Debug("lyrics found", "source", src.Name(), "video", ref.VideoID)
			return text
		}
	}
	return ""
}

// enrichFromTags fills artist and title from tags embedded in the fetched
// audio, but only where the resolver had nothing better: the artist slot
// holds the uploader's channel name, the title is kept unless blank. Best
// effort, never fatal.
func (p *resolvePipeline) enrichFromTags(path string, ref *types.MediaReference) (string, string) {
	artist, title := ref.Channel, ref.Title

	f, err := os.Open(path)
	if err != nil {
		return artist, title
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return artist, title
	}
	if a := strings.TrimSpace(meta.Artist()); a != "" && (artist == "" || artist == ref.Channel) {
		artist = a
	}
	if t := strings.TrimSpace(meta.Title()); t != "" && title == "" {
		title = t
	}
	return artist, title
}

func (p *resolvePipeline) publish(key string, stage types.Stage, message string, progress float64, fromCache bool) {
	if p.sink == nil {
		return
	}
	p.sink.Publish(types.StageEvent{
		Key:       key,
		Stage:     stage,
		Message:   message,
		Progress:  progress,
		FromCache: fromCache,
		Timestamp: time.Now(),
	})
}
