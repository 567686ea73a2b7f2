package services

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore/types"
)

func newTestStore(t *testing.T) CacheStore {
	t.Helper()
	store, err := NewCacheStore(t.TempDir(), log.New(io.Discard))
	require.NoError(t, err)
	return store
}

func stageTestAudio(t *testing.T, store CacheStore, key string, content []byte) string {
	t.Helper()
	staged := store.StagePath(key, ".mp3")
	require.NoError(t, os.WriteFile(staged, content, 0o644))
	return staged
}

func testMetadata(key string) *types.TrackMetadata {
	return &types.TrackMetadata{
		Artist:   "Ed Sheeran",
		Title:    "Shape of You",
		Duration: 233,
		CoverURL: "https://i.ytimg.com/vi/abc/hqdefault.jpg",
		AudioURL: "/cache/" + key + ".mp3",
		LyricURL: "/cache/" + key + ".lrc",
	}
}

// TestExistsBeforeAndAfterCommit tests that the metadata file is the single
// source of truth for "entry complete"
func TestExistsBeforeAndAfterCommit(t *testing.T) {
	store := newTestStore(t)
	key := DeriveCacheKey("shape of you ed sheeran")

	assert.False(t, store.Exists(key))

	staged := stageTestAudio(t, store, key, []byte("mp3-bytes"))
	require.NoError(t, store.CommitEntry(key, staged, "some lyrics", testMetadata(key)))

	assert.True(t, store.Exists(key))
}

// TestReadMetadataRoundTrip tests that a committed record reads back intact
func TestReadMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	key := DeriveCacheKey("round trip")
	want := testMetadata(key)

	staged := stageTestAudio(t, store, key, []byte("mp3-bytes"))
	require.NoError(t, store.CommitEntry(key, staged, "", want))

	got, err := store.ReadMetadata(key)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestReadMetadataNotFound tests the error kind for absent entries
func TestReadMetadataNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReadMetadata(DeriveCacheKey("never cached"))
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCommitWritesAllThreeArtifacts tests the on-disk layout of an entry
func TestCommitWritesAllThreeArtifacts(t *testing.T) {
	store := newTestStore(t)
	key := DeriveCacheKey("three artifacts")

	staged := stageTestAudio(t, store, key, []byte("audio-payload"))
	require.NoError(t, store.CommitEntry(key, staged, "la la la", testMetadata(key)))

	for _, ext := range []string{".mp3", ".lrc", ".json"} {
		_, err := os.Stat(filepath.Join(store.Root(), key+ext))
		assert.NoError(t, err, "expected %s artifact", ext)
	}

	// The staged file must have been promoted, not copied.
	_, err := os.Stat(staged)
	assert.True(t, os.IsNotExist(err))
}

// TestCommitWritesEmptyLyrics tests that absence of lyrics is a cacheable
// state: the .lrc file exists so lyric lookup happens at most once per key
func TestCommitWritesEmptyLyrics(t *testing.T) {
	store := newTestStore(t)
	key := DeriveCacheKey("no lyrics anywhere")

	staged := stageTestAudio(t, store, key, []byte("audio"))
	require.NoError(t, store.CommitEntry(key, staged, "", testMetadata(key)))

	data, err := os.ReadFile(filepath.Join(store.Root(), key+".lrc"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

// TestCommitWithoutStagedAudio tests that a failed fetch can never produce a
// metadata record: the entry stays fully retryable
func TestCommitWithoutStagedAudio(t *testing.T) {
	store := newTestStore(t)
	key := DeriveCacheKey("interrupted run")

	err := store.CommitEntry(key, store.StagePath(key, ".mp3"), "lyrics", testMetadata(key))
	require.Error(t, err)

	assert.False(t, store.Exists(key))
	_, statErr := os.Stat(filepath.Join(store.Root(), key+".json"))
	assert.True(t, os.IsNotExist(statErr))
}

// TestOpenArtifact tests sequential read access for the streaming handler
func TestOpenArtifact(t *testing.T) {
	store := newTestStore(t)
	key := DeriveCacheKey("open artifact")
	payload := []byte("fake mp3 payload")

	staged := stageTestAudio(t, store, key, payload)
	require.NoError(t, store.CommitEntry(key, staged, "words", testMetadata(key)))

	tests := []struct {
		name string
		kind types.ArtifactKind
		want string
	}{
		{name: "audio", kind: types.ArtifactAudio, want: string(payload)},
		{name: "lyrics", kind: types.ArtifactLyrics, want: "words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, info, err := store.OpenArtifact(key, tt.kind)
			require.NoError(t, err)
			defer f.Close()

			data, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
			assert.Equal(t, int64(len(tt.want)), info.Size())
		})
	}
}

// TestOpenArtifactNotFound tests the miss path for the streaming handler
func TestOpenArtifactNotFound(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.OpenArtifact(DeriveCacheKey("missing"), types.ArtifactAudio)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestStagePathsAreUniqueAndContained tests that concurrent runs for the same
// key never collide on scratch files and stay inside the cache root
func TestStagePathsAreUniqueAndContained(t *testing.T) {
	store := newTestStore(t)
	key := DeriveCacheKey("staging")

	a := store.StagePath(key, ".mp3")
	b := store.StagePath(key, ".mp3")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, store.Root()))
	assert.True(t, strings.HasPrefix(b, store.Root()))
}
