package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"encore/types"
)

// CacheStore owns the on-disk layout of cache entries: per key, three files
// sharing the key as basename (.mp3, .lrc, .json). The .json file is the
// single source of truth for "entry complete".
type CacheStore interface {
	// Exists reports whether a completed entry is present for key.
	Exists(key string) bool
	// ReadMetadata loads the persisted metadata record for key.
	ReadMetadata(key string) (*types.TrackMetadata, error)
	// StagePath returns a unique scratch path (with the given extension)
	// inside the store's staging area for in-flight downloads.
	StagePath(key, ext string) string
	// CommitEntry promotes a staged audio file plus lyric text and metadata
	// into a completed entry. The metadata record is written last, via
	// write-then-rename, so readers never observe a partial entry.
	CommitEntry(key, stagedAudio, lyrics string, meta *types.TrackMetadata) error
	// OpenArtifact opens one artifact of an entry for sequential reading.
	OpenArtifact(key string, kind types.ArtifactKind) (*os.File, os.FileInfo, error)
	// Root returns the absolute cache root directory.
	Root() string
}

// fsStore implements CacheStore on a local directory.
type fsStore struct {
	root    string
	staging string
	logger  *log.Logger
}

// NewCacheStore creates a filesystem cache store rooted at root, creating the
// root and its staging subdirectory as needed.
func NewCacheStore(root string, logger *log.Logger) (CacheStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	staging := filepath.Join(abs, ".staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &fsStore{root: abs, staging: staging, logger: logger.With("component", "cachestore")}, nil
}

func (s *fsStore) Root() string {
	return s.root
}

func (s *fsStore) artifactPath(key string, kind types.ArtifactKind) string {
	return filepath.Join(s.root, key+kind.Ext())
}

func (s *fsStore) Exists(key string) bool {
	info, err := os.Stat(s.artifactPath(key, types.ArtifactMetadata))
	return err == nil && info.Mode().IsRegular()
}

func (s *fsStore) ReadMetadata(key string) (*types.TrackMetadata, error) {
	data, err := os.ReadFile(s.artifactPath(key, types.ArtifactMetadata))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("metadata for %s: %w", key, ErrNotFound)
		}
		return nil, err
	}

	var meta types.TrackMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", key, err)
	}
	return &meta, nil
}

// StagePath keeps scratch files inside the cache root so the final rename in
// CommitEntry never crosses filesystems.
func (s *fsStore) StagePath(key, ext string) string {
	return filepath.Join(s.staging, key+"-"+uuid.NewString()+ext)
}

func (s *fsStore) CommitEntry(key, stagedAudio, lyrics string, meta *types.TrackMetadata) error {
	if meta == nil {
		return fmt.Errorf("commit %s: nil metadata", key)
	}
	if _, err := os.Stat(stagedAudio); err != nil {
		return fmt.Errorf("commit %s: staged audio missing: %w", key, err)
	}

	// Advisory per-key lock: two processes sharing the cache directory must
	// not interleave commits of the same key.
	lock := flock.New(filepath.Join(s.staging, key+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("commit %s: acquire lock: %w", key, err)
	}
	defer lock.Unlock() //nolint:errcheck

	if err := os.Rename(stagedAudio, s.artifactPath(key, types.ArtifactAudio)); err != nil {
		return fmt.Errorf("commit %s: promote audio: %w", key, err)
	}

	// Lyrics are written even when empty so lyric lookup happens at most
	// once per key.
	if err := s.writeFileAtomic(s.artifactPath(key, types.ArtifactLyrics), []byte(lyrics)); err != nil {
		return fmt.Errorf("commit %s: write lyrics: %w", key, err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("commit %s: encode metadata: %w", key, err)
	}
	if err := s.writeFileAtomic(s.artifactPath(key, types.ArtifactMetadata), data); err != nil {
		return fmt.Errorf("commit %s: write metadata: %w", key, err)
	}

	s.logger.Debug("committed cache entry", "key", key, "title", meta.Title, "artist", meta.Artist)
	return nil
}

// writeFileAtomic writes data to a staging temp file and renames it into
// place, so a concurrent reader sees either the old file or the new one.
func (s *fsStore) writeFileAtomic(path string, data []byte) error {
	tmp := filepath.Join(s.staging, filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fsStore) OpenArtifact(key string, kind types.ArtifactKind) (*os.File, os.FileInfo, error) {
	f, err := os.Open(s.artifactPath(key, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%s artifact for %s: %w", kind, key, ErrNotFound)
		}
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s artifact for %s: %w", kind, key, ErrNotFound)
	}
	return f, info, nil
}
