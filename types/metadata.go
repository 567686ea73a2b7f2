package types

// ArtifactKind identifies one of the three files that make up a cache entry.
type ArtifactKind string

const (
	ArtifactAudio    ArtifactKind = "audio"
	ArtifactLyrics   ArtifactKind = "lyrics"
	ArtifactMetadata ArtifactKind = "metadata"
)

// Ext returns the on-disk file extension for the artifact kind.
func (k ArtifactKind) Ext() string {
	switch k {
	case ArtifactAudio:
		return ".mp3"
	case ArtifactLyrics:
		return ".lrc"
	case ArtifactMetadata:
		return ".json"
	default:
		return ""
	}
}

// TrackMetadata is the persisted record for a completed cache entry and the
// response body of the resolve endpoint.
type TrackMetadata struct {
	Artist    string `json:"artist"`
	Title     string `json:"title"`
	Duration  int    `json:"duration"` // seconds, 0 when unknown
	CoverURL  string `json:"cover_url"`
	AudioURL  string `json:"audio_url"`
	LyricURL  string `json:"lyric_url"`
	FromCache bool   `json:"from_cache"`
}

// MediaReference is the transient result of media resolution: everything the
// fetcher and lyric sources need to locate the underlying media. It is never
// persisted on its own; its fields fold into TrackMetadata.
type MediaReference struct {
	VideoID  string `json:"videoId"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	CoverURL string `json:"coverUrl"`
	Duration int    `json:"duration"` // seconds, 0 until the fetcher reports it
}

// WatchURL returns the canonical watch page URL for the referenced media.
func (m *MediaReference) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + m.VideoID
}
