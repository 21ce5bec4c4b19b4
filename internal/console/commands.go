package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/cogniscribe/internal/chat"
)

// registerCommands wires every slash command to its controller operation.
func (c *Console) registerCommands() {
	r := c.router

	// ── Models ──────────────────────────────────────────────────────────────
	r.Register("models", "", "list the model catalog", c.cmdModels)
	r.Register("refresh", "", "fetch the model catalog again", noArgs(c.ctrl.RefreshModels))
	r.Register("download", "N|id", "download a model and load it when done", func(args string) error {
		id, err := c.modelID(args)
		if err != nil {
			return err
		}
		return c.ctrl.DownloadModel(id)
	})
	r.Register("load", "N|id", "load a downloaded model", func(args string) error {
		id, err := c.modelID(args)
		if err != nil {
			return err
		}
		return c.ctrl.LoadModel(id)
	})

	// ── Speech input ────────────────────────────────────────────────────────
	r.Register("listen", "", "start speech recognition", noArgs(c.ctrl.StartListening))
	r.Register("stop-listening", "", "stop speech recognition", noArgs(c.ctrl.StopListening))
	r.Register("clear", "", "clear the recognition preview", noArgs(c.ctrl.ClearRecognitionPreview))

	// ── Speech output ───────────────────────────────────────────────────────
	r.Register("speech", "", "toggle speech mode (answers are read aloud)", noArgs(c.ctrl.ToggleSpeechMode))
	r.Register("play", "N [pos]", "read message N aloud, optionally from a character position", c.cmdPlay)
	r.Register("pause", "N", "pause reading message N", c.onMessage(c.ctrl.Pause))
	r.Register("resume", "N", "resume reading message N", c.onMessage(c.ctrl.Resume))
	r.Register("toggle", "N", "play, pause or resume message N", c.onMessage(c.ctrl.Toggle))
	r.Register("stop", "", "stop reading aloud", noArgs(c.ctrl.StopSpeaking))
	r.Register("from", "N text", "read message N aloud from the given text", c.cmdFrom)

	// ── Conversation ────────────────────────────────────────────────────────
	r.Register("reply", "N", "reply to message N with your next message", c.onMessage(c.ctrl.ReplyTo))
	r.Register("cancel-reply", "", "stop replying to a message", noArgs(c.ctrl.CancelReply))

	// ── Console ─────────────────────────────────────────────────────────────
	r.Register("help", "", "show this help", func(string) error {
		c.println("Commands:")
		for _, line := range r.Help() {
			c.println(line)
		}
		return nil
	})
	r.Register("quit", "", "leave the session", func(string) error { return ErrQuit })
}

// noArgs adapts an operation without arguments. Extra arguments are ignored.
func noArgs(fn func() error) HandlerFunc {
	return func(string) error { return fn() }
}

// onMessage adapts an operation on a message id to take a message number.
func (c *Console) onMessage(fn func(messageID string) error) HandlerFunc {
	return func(args string) error {
		m, err := c.messageAt(args)
		if err != nil {
			return err
		}
		return fn(m.ID)
	}
}

func (c *Console) cmdModels(string) error {
	s := c.ctrl.Store().Snapshot()
	if len(s.Catalog) == 0 {
		c.println("No models available. Try /refresh.")
		return nil
	}
	for i, m := range s.Catalog {
		state := "not downloaded"
		if m.IsDownloaded {
			state = "downloaded"
		}
		if m.ID == s.ActiveModelID {
			state = "active"
		}
		line := fmt.Sprintf("  %2d. %-28s %-18s %s", i+1, m.ID, m.Category, state)
		if m.Size > 0 {
			line += "  " + formatSize(m.Size)
		}
		c.println(line)
	}
	return nil
}

func (c *Console) cmdPlay(args string) error {
	num, pos, hasPos := strings.Cut(args, " ")
	m, err := c.messageAt(num)
	if err != nil {
		return err
	}
	if !hasPos {
		return c.ctrl.Play(m.ID, 0)
	}
	offset, err := strconv.Atoi(strings.TrimSpace(pos))
	if err != nil {
		return fmt.Errorf("character position expected, got %q", pos)
	}
	return c.ctrl.SpeakFrom(m.ID, offset)
}

func (c *Console) cmdFrom(args string) error {
	num, text, _ := strings.Cut(args, " ")
	m, err := c.messageAt(num)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("text to start from expected")
	}
	return c.ctrl.PlayFromText(m.ID, text)
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// label is the speaker shown in front of a message.
func label(s chat.State, m chat.Message) string {
	if m.FromUser {
		return "You"
	}
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return chat.DefaultPersona.Name
}
