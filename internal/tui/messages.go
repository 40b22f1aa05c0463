package tui

import (
	"github.com/inkvox/inkvox/internal/protocol"
)

// Bus notifications are forwarded into the program as messages so the model
// stays a pure state reducer.

type stateChangedMsg protocol.StateChange

type chunkProgressMsg protocol.ChunkProgress

type extractProgressMsg protocol.ExtractProgress

type playbackStatusMsg protocol.PlaybackStatus

// opResultMsg reports the outcome of a controller call issued by a key press.
type opResultMsg struct {
	op  string
	err error
}
