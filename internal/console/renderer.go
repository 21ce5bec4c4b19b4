package console

import (
	"fmt"
	"math"

	"github.com/MrWong99/cogniscribe/internal/chat"
)

// renderer prints the difference between consecutive state snapshots. It is
// used from a single goroutine.
type renderer struct {
	c    *Console
	prev chat.State

	// printed counts the characters of each message already written.
	printed map[string]int

	// open is the message whose line is still being streamed, if any.
	open string

	// lastPercent is the last download progress printed, or -1.
	lastPercent int
}

func newRenderer(c *Console) *renderer {
	return &renderer{c: c, printed: make(map[string]int), lastPercent: -1}
}

// render prints everything that changed since the previous snapshot.
func (r *renderer) render(s chat.State) {
	prev := r.prev
	r.prev = s

	// A new conversation starts from a clean transcript.
	if len(s.Messages) < len(prev.Messages) {
		r.printed = make(map[string]int)
		r.open = ""
	}

	r.messages(s)

	if s.ActiveModelID != prev.ActiveModelID && s.ActiveModelID != "" {
		r.line("model: " + s.ActiveModelID)
	}
	r.download(s)
	if s.Status != prev.Status && s.Status != "" {
		r.line("[" + s.Status + "]")
	}
	if s.Listening != prev.Listening {
		r.line(onOff("listening", s.Listening))
	}
	if s.RecognitionPreview != prev.RecognitionPreview && s.RecognitionPreview != "" {
		r.line("heard: " + s.RecognitionPreview)
	}
	if s.SpeechMode != prev.SpeechMode {
		r.line(onOff("speech mode", s.SpeechMode))
	}
	r.replyTarget(prev, s)
	r.playback(prev, s)
}

func (r *renderer) messages(s chat.State) {
	for i, m := range s.Messages {
		text := []rune(m.Text)
		done, seen := r.printed[m.ID]
		switch {
		case !seen:
			r.closeLine()
			r.c.printf("#%d %s: %s", i+1, label(s, m), m.Text)
			r.printed[m.ID] = len(text)
			if m.Streaming {
				r.open = m.ID
			} else {
				r.c.printf("\n")
			}
		case len(text) > done:
			if r.open != m.ID {
				r.closeLine()
				r.c.printf("#%d ... ", i+1)
				r.open = m.ID
			}
			r.c.printf("%s", string(text[done:]))
			r.printed[m.ID] = len(text)
		}
		if r.open == m.ID && !m.Streaming {
			r.closeLine()
		}
	}
}

func (r *renderer) download(s chat.State) {
	if s.DownloadProgress == nil {
		r.lastPercent = -1
		return
	}
	pct := int(math.Floor(*s.DownloadProgress * 100))
	// Progress is printed in steps of ten percent.
	if r.lastPercent < 0 || pct/10 > r.lastPercent/10 || (pct == 100 && r.lastPercent != 100) {
		r.line(fmt.Sprintf("download: %d%%", pct))
		r.lastPercent = pct
	}
}

func (r *renderer) replyTarget(prev, s chat.State) {
	switch {
	case s.ReplyTarget != nil && (prev.ReplyTarget == nil || prev.ReplyTarget.ID != s.ReplyTarget.ID):
		r.line(fmt.Sprintf("replying to #%d", numberOf(s, s.ReplyTarget.ID)))
	case s.ReplyTarget == nil && prev.ReplyTarget != nil:
		r.line("reply cleared")
	}
}

func (r *renderer) playback(prev, s chat.State) {
	if s.SpeakingMessageID != prev.SpeakingMessageID && s.SpeakingMessageID != "" {
		r.line(fmt.Sprintf("speaking #%d", numberOf(s, s.SpeakingMessageID)))
	}
	for id, ps := range s.Playback {
		old := prev.Playback[id]
		if ps.Paused && !old.Paused {
			r.line(fmt.Sprintf("paused #%d at %d", numberOf(s, id), ps.Position))
		}
	}
	if s.SpeakingMessageID == "" && prev.SpeakingMessageID != "" {
		if !s.Playback[prev.SpeakingMessageID].Paused {
			r.line("stopped speaking")
		}
	}
}

// line prints a full line, ending a streamed message line first.
func (r *renderer) line(text string) {
	r.closeLine()
	r.c.println(text)
}

func (r *renderer) closeLine() {
	if r.open != "" {
		r.c.printf("\n")
		r.open = ""
	}
}

func onOff(what string, on bool) string {
	if on {
		return what + " on"
	}
	return what + " off"
}
