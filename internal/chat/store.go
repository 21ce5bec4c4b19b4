package chat

import (
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
	"github.com/MrWong99/cogniscribe/pkg/textpos"
)

// Message is one transcript entry.
type Message struct {
	ID       string
	Text     string
	FromUser bool

	// Streaming is true while tokens are still being appended.
	Streaming bool
}

// PlaybackState is the speech state of one message. Playing and Paused are
// mutually exclusive. Position is a character offset into the message text.
type PlaybackState struct {
	Playing  bool
	Paused   bool
	Position int
}

// State is an immutable snapshot of everything the presentation layer shows.
type State struct {
	Messages []Message
	Loading  bool
	Catalog  []runtime.ModelDescriptor

	// DownloadProgress is nil when no download is in flight.
	DownloadProgress *float64

	// ActiveModelID is empty until a model has been loaded.
	ActiveModelID string

	Status     string
	Listening  bool
	SpeechMode bool

	// SpeakingMessageID is the message currently being spoken, if any.
	SpeakingMessageID string

	Playback map[string]PlaybackState

	RecognitionPreview string
	ReplyTarget        *Message
	DisplayName        string
}

// Message returns the transcript entry with the given id.
func (s State) Message(id string) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// PlayingCount returns how many messages are marked playing.
func (s State) PlayingCount() int {
	n := 0
	for _, p := range s.Playback {
		if p.Playing {
			n++
		}
	}
	return n
}

func (s State) clone() State {
	c := s
	c.Messages = slices.Clone(s.Messages)
	c.Catalog = slices.Clone(s.Catalog)
	c.Playback = maps.Clone(s.Playback)
	if s.DownloadProgress != nil {
		p := *s.DownloadProgress
		c.DownloadProgress = &p
	}
	if s.ReplyTarget != nil {
		m := *s.ReplyTarget
		c.ReplyTarget = &m
	}
	return c
}

// Store holds the conversation state. Every mutation happens under one lock
// and is followed by a notification, so readers never observe a half-applied
// change.
//
// Subscriptions conflate: a slow subscriber skips intermediate snapshots and
// always receives the latest one.
type Store struct {
	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
	newID  func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: State{Playback: make(map[string]PlaybackState)},
		subs:  make(map[int]chan State),
		newID: uuid.NewString,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe returns a channel that receives the current state immediately
// and the latest state after every change. cancel closes the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	ch <- s.state.clone()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// update applies fn under the lock and notifies subscribers.
func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.state.clone()
	}
}

// Reset starts a new conversation with an optional greeting.
func (s *Store) Reset(displayName, greeting string) {
	s.update(func(st *State) {
		st.Messages = nil
		st.Playback = make(map[string]PlaybackState)
		st.SpeakingMessageID = ""
		st.ReplyTarget = nil
		st.RecognitionPreview = ""
		st.DisplayName = displayName
		if greeting != "" {
			st.Messages = append(st.Messages, Message{ID: s.newID(), Text: greeting})
		}
	})
}

// AppendUserMessage appends a user message and clears the reply target and
// the recognition preview.
func (s *Store) AppendUserMessage(text string) Message {
	m := Message{ID: s.newID(), Text: text, FromUser: true}
	s.update(func(st *State) {
		st.Messages = append(st.Messages, m)
		st.ReplyTarget = nil
		st.RecognitionPreview = ""
	})
	return m
}

// AppendOrExtendAssistantToken appends token to the last message if it is an
// assistant message still streaming, and otherwise starts a new streaming
// assistant message. It returns the resulting message.
func (s *Store) AppendOrExtendAssistantToken(token string) Message {
	var out Message
	s.update(func(st *State) {
		if n := len(st.Messages); n > 0 {
			last := &st.Messages[n-1]
			if !last.FromUser && last.Streaming {
				last.Text += token
				out = *last
				return
			}
		}
		out = Message{ID: s.newID(), Text: token, Streaming: true}
		st.Messages = append(st.Messages, out)
	})
	return out
}

// FinishAssistantMessage marks the streaming assistant message as complete
// and returns it. ok is false when nothing was streaming.
func (s *Store) FinishAssistantMessage() (m Message, ok bool) {
	s.update(func(st *State) {
		if n := len(st.Messages); n > 0 {
			last := &st.Messages[n-1]
			if !last.FromUser && last.Streaming {
				last.Streaming = false
				m, ok = *last, true
			}
		}
	})
	return m, ok
}

// AppendAssistantMessage appends a complete assistant message.
func (s *Store) AppendAssistantMessage(text string) Message {
	m := Message{ID: s.newID(), Text: text}
	s.update(func(st *State) { st.Messages = append(st.Messages, m) })
	return m
}

// SetReplyTarget sets or, with nil, clears the reply target.
func (s *Store) SetReplyTarget(m *Message) {
	s.update(func(st *State) {
		if m == nil {
			st.ReplyTarget = nil
			return
		}
		c := *m
		st.ReplyTarget = &c
	})
}

// SetPlaybackState replaces the entry for id. Position is clamped to the
// message text. Marking a message playing clears any other playing entry,
// so at most one message plays at a time.
func (s *Store) SetPlaybackState(id string, ps PlaybackState) {
	s.update(func(st *State) {
		if m, ok := st.Message(id); ok {
			ps.Position = max(0, min(ps.Position, textpos.Len(m.Text)))
		}
		if ps.Playing {
			ps.Paused = false
			for other, p := range st.Playback {
				if other != id && p.Playing {
					st.Playback[other] = PlaybackState{}
				}
			}
		}
		st.Playback[id] = ps
	})
}

// SetSpeakingMessage records the message being spoken; empty clears it.
func (s *Store) SetSpeakingMessage(id string) {
	s.update(func(st *State) { st.SpeakingMessageID = id })
}

// SetStatus replaces the status line.
func (s *Store) SetStatus(status string) {
	s.update(func(st *State) { st.Status = status })
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.update(func(st *State) { st.Loading = loading })
}

// SetCatalog replaces the model catalog.
func (s *Store) SetCatalog(models []runtime.ModelDescriptor) {
	s.update(func(st *State) { st.Catalog = slices.Clone(models) })
}

// SetDownloadProgress sets the download fraction; nil means idle.
func (s *Store) SetDownloadProgress(p *float64) {
	s.update(func(st *State) {
		if p == nil {
			st.DownloadProgress = nil
			return
		}
		v := *p
		st.DownloadProgress = &v
	})
}

// SetActiveModel records the loaded model.
func (s *Store) SetActiveModel(id string) {
	s.update(func(st *State) { st.ActiveModelID = id })
}

// SetListening sets the listening flag.
func (s *Store) SetListening(on bool) {
	s.update(func(st *State) { st.Listening = on })
}

// SetSpeechMode sets the speech-mode flag.
func (s *Store) SetSpeechMode(on bool) {
	s.update(func(st *State) { st.SpeechMode = on })
}

// SetRecognitionPreview replaces the live recognition text.
func (s *Store) SetRecognitionPreview(text string) {
	s.update(func(st *State) { st.RecognitionPreview = text })
}
