package chat

import "fmt"

// Tracker correlates synthesizer callbacks with transcript messages and
// keeps the playback state in the store up to date.
//
// Every Speak gets a fresh utterance id so callbacks from a stopped or
// superseded utterance can be told apart and ignored. Range offsets are
// relative to the spoken text; the tracker rebases them onto the message.
//
// A Tracker is not safe for concurrent use. The orchestrator only touches it
// from its event loop.
type Tracker struct {
	store *Store

	seq       uint64
	utterance string // current utterance id
	messageID string // message being spoken
	base      int    // offset of the spoken text within the message
	lastPos   int    // last known absolute position
}

// NewTracker returns a tracker writing to store.
func NewTracker(store *Store) *Tracker {
	return &Tracker{store: store}
}

// Begin registers a new utterance for messageID starting at offset start and
// marks the message playing. It returns the utterance id to pass to Speak.
func (t *Tracker) Begin(messageID string, start int) string {
	t.seq++
	t.utterance = fmt.Sprintf("%s#%d", messageID, t.seq)
	t.messageID = messageID
	t.base = start
	t.lastPos = start
	t.store.SetPlaybackState(messageID, PlaybackState{Playing: true, Position: start})
	t.store.SetSpeakingMessage(messageID)
	return t.utterance
}

// Speaking returns the message currently being spoken, or "".
func (t *Tracker) Speaking() string {
	return t.messageID
}

// Started handles the synthesizer's started callback.
func (t *Tracker) Started(utteranceID string) bool {
	if !t.current(utteranceID) {
		return false
	}
	t.store.SetPlaybackState(t.messageID, PlaybackState{Playing: true, Position: t.lastPos})
	t.store.SetSpeakingMessage(t.messageID)
	return true
}

// Range records start, relative to the spoken text, as the last known
// position and publishes it.
func (t *Tracker) Range(utteranceID string, start int) bool {
	if !t.current(utteranceID) {
		return false
	}
	t.lastPos = t.base + start
	t.store.SetPlaybackState(t.messageID, PlaybackState{Playing: true, Position: t.lastPos})
	return true
}

// Finish handles done and error callbacks: the message stops playing and its
// position resets to 0. It returns the message id.
func (t *Tracker) Finish(utteranceID string) (string, bool) {
	if !t.current(utteranceID) {
		return "", false
	}
	id := t.messageID
	t.store.SetPlaybackState(id, PlaybackState{})
	t.clear()
	return id, true
}

// Pause stops tracking and stores the last known position for messageID so
// a later resume continues from there. Pausing a message that is not being
// spoken keeps its stored position.
func (t *Tracker) Pause(messageID string) int {
	pos := t.store.Snapshot().Playback[messageID].Position
	if t.messageID == messageID {
		pos = t.lastPos
		t.clear()
	}
	t.store.SetPlaybackState(messageID, PlaybackState{Paused: true, Position: pos})
	return pos
}

// Stop resets the speaking message to the start and stops tracking.
func (t *Tracker) Stop() {
	if t.messageID == "" {
		return
	}
	t.store.SetPlaybackState(t.messageID, PlaybackState{})
	t.clear()
}

func (t *Tracker) current(utteranceID string) bool {
	return utteranceID != "" && utteranceID == t.utterance
}

func (t *Tracker) clear() {
	t.utterance = ""
	t.messageID = ""
	t.base = 0
	t.lastPos = 0
	t.store.SetSpeakingMessage("")
}
