package types

import "time"

// Stage identifies a step of the resolve pipeline.
type Stage string

const (
	StageCheckCache  Stage = "check_cache"
	StageResolve     Stage = "resolve"
	StageFetchAudio  Stage = "fetch_audio"
	StageFetchLyrics Stage = "fetch_lyrics"
	StagePersist     Stage = "persist"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

// StageEvent is a WebSocket progress update emitted as a pipeline run moves
// through its stages.
type StageEvent struct {
	Key       string    `json:"key"`   // cache key the run belongs to
	Stage     Stage     `json:"stage"` // stage just entered
	Message   string    `json:"message,omitempty"`
	Progress  float64   `json:"progress"` // 0-100, download percentage during fetch_audio
	FromCache bool      `json:"fromCache"`
	Timestamp time.Time `json:"timestamp"`
}
