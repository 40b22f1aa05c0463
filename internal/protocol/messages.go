package protocol

import "time"

// StateChange is broadcast whenever the narration session moves between states.
type StateChange struct {
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChunkProgress reports one synthesized chunk during a conversion.
type ChunkProgress struct {
	SessionID  string        `json:"session_id"`
	ChunkIndex int           `json:"chunk_index"`
	ChunkCount int           `json:"chunk_count"`
	Bytes      int           `json:"bytes"`
	Duration   time.Duration `json:"duration_ns"`
	Retries    int           `json:"retries,omitempty"`
}

// ExtractProgress reports per-page extraction results.
type ExtractProgress struct {
	SessionID string `json:"session_id"`
	Page      int    `json:"page"`
	Chars     int    `json:"chars"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// PlaybackStatus reports the transport position while audio is playing.
type PlaybackStatus struct {
	SessionID string        `json:"session_id"`
	State     string        `json:"state"`
	Position  time.Duration `json:"position_ns"`
	Total     time.Duration `json:"total_ns"`
}

const (
	SubjectStateChanged    = "narrate.state.changed"
	SubjectChunkProgress   = "narrate.chunk.progress"
	SubjectExtractProgress = "narrate.extract.progress"
	SubjectPlaybackStatus  = "narrate.playback.status"
)
