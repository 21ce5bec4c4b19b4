package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cogniscribe/pkg/provider/runtime"
)

func TestStore_AppendOrExtendAssistantToken(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AppendUserMessage("tell me a story")

	tokens := []string{"Once", " upon", " a", " time", " 🌟"}
	for _, tok := range tokens {
		s.AppendOrExtendAssistantToken(tok)
	}

	snap := s.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(snap.Messages))
	}
	got := snap.Messages[1]
	if got.FromUser || !got.Streaming {
		t.Errorf("assistant message = %+v", got)
	}
	if want := strings.Join(tokens, ""); got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}

	done, ok := s.FinishAssistantMessage()
	if !ok || done.Streaming || done.ID != got.ID {
		t.Fatalf("FinishAssistantMessage = %+v, %v", done, ok)
	}

	// A finished answer is never extended: the next token starts a new turn.
	s.AppendOrExtendAssistantToken("Next")
	snap = s.Snapshot()
	if len(snap.Messages) != 3 || snap.Messages[2].Text != "Next" {
		t.Errorf("messages = %+v", snap.Messages)
	}
}

func TestStore_GreetingIsNotExtended(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Reset("Explorer Max", "Hey Explorer!")
	s.AppendOrExtendAssistantToken("tok")

	snap := s.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("messages = %+v", snap.Messages)
	}
	if snap.DisplayName != "Explorer Max" {
		t.Errorf("display name = %q", snap.DisplayName)
	}
}

func TestStore_AppendUserMessageClearsReplyAndPreview(t *testing.T) {
	t.Parallel()

	s := NewStore()
	greet := s.AppendAssistantMessage("Hi!")
	s.SetReplyTarget(&greet)
	s.SetRecognitionPreview("hel")

	m := s.AppendUserMessage("hello")
	if !m.FromUser || m.ID == "" || m.ID == greet.ID {
		t.Errorf("user message = %+v", m)
	}
	snap := s.Snapshot()
	if snap.ReplyTarget != nil {
		t.Errorf("reply target = %+v, want nil", snap.ReplyTarget)
	}
	if snap.RecognitionPreview != "" {
		t.Errorf("preview = %q, want empty", snap.RecognitionPreview)
	}
}

func TestStore_SetPlaybackStateSinglePlayer(t *testing.T) {
	t.Parallel()

	s := NewStore()
	a := s.AppendAssistantMessage("first answer")
	b := s.AppendAssistantMessage("second answer")

	s.SetPlaybackState(a.ID, PlaybackState{Playing: true, Position: 3})
	s.SetPlaybackState(b.ID, PlaybackState{Playing: true})

	snap := s.Snapshot()
	if n := snap.PlayingCount(); n != 1 {
		t.Fatalf("playing = %d, want 1", n)
	}
	if !snap.Playback[b.ID].Playing {
		t.Error("second message should be playing")
	}
	if got := snap.Playback[a.ID]; got != (PlaybackState{}) {
		t.Errorf("first message = %+v, want reset", got)
	}
}

func TestStore_SetPlaybackStateClampsPosition(t *testing.T) {
	t.Parallel()

	s := NewStore()
	m := s.AppendAssistantMessage("héllo")

	s.SetPlaybackState(m.ID, PlaybackState{Paused: true, Position: 99})
	if got := s.Snapshot().Playback[m.ID].Position; got != 5 {
		t.Errorf("position = %d, want 5", got)
	}
	s.SetPlaybackState(m.ID, PlaybackState{Paused: true, Position: -4})
	if got := s.Snapshot().Playback[m.ID].Position; got != 0 {
		t.Errorf("position = %d, want 0", got)
	}
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	m := s.AppendAssistantMessage("hi")
	s.SetReplyTarget(&m)
	p := 0.5
	s.SetDownloadProgress(&p)
	s.SetCatalog([]runtime.ModelDescriptor{{ID: "m1"}})
	s.SetPlaybackState(m.ID, PlaybackState{Paused: true, Position: 1})

	snap := s.Snapshot()
	snap.Messages[0].Text = "mutated"
	snap.ReplyTarget.Text = "mutated"
	*snap.DownloadProgress = 0.9
	snap.Catalog[0].ID = "mutated"
	snap.Playback[m.ID] = PlaybackState{}
	p = 0.1

	again := s.Snapshot()
	if again.Messages[0].Text != "hi" || again.ReplyTarget.Text != "hi" {
		t.Error("messages leaked through snapshot")
	}
	if *again.DownloadProgress != 0.5 {
		t.Errorf("progress = %v, want 0.5", *again.DownloadProgress)
	}
	if again.Catalog[0].ID != "m1" {
		t.Error("catalog leaked through snapshot")
	}
	if !again.Playback[m.ID].Paused {
		t.Error("playback leaked through snapshot")
	}
}

func TestStore_SubscribeConflates(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ch, cancel := s.Subscribe()

	first := <-ch
	if first.Status != "" {
		t.Errorf("initial status = %q", first.Status)
	}

	for i := range 10 {
		s.SetStatus(strings.Repeat("x", i+1))
	}
	select {
	case st := <-ch:
		if st.Status != strings.Repeat("x", 10) {
			t.Errorf("status = %q, want latest", st.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	select {
	case st := <-ch:
		t.Errorf("unexpected extra snapshot %q", st.Status)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	s.SetStatus("after cancel")
}
