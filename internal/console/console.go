// Package console is the terminal front end of a chat session.
//
// Plain input lines are sent to the assistant; lines starting with "/" are
// commands that map one to one onto orchestrator operations. A renderer
// subscribed to the state store prints what changed: status lines, new and
// streaming messages, download progress and playback. The console holds no
// conversation state of its own.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cogniscribe/internal/chat"
)

// ErrQuit is returned by Execute for the /quit command.
var ErrQuit = errors.New("console: quit")

// Controller is the set of session operations the console drives.
// *chat.Orchestrator implements it.
type Controller interface {
	Store() *chat.Store

	RefreshModels() error
	DownloadModel(id string) error
	LoadModel(id string) error
	SendMessage(text string) error

	StartListening() error
	StopListening() error
	ClearRecognitionPreview() error

	ReplyTo(messageID string) error
	CancelReply() error
	ToggleSpeechMode() error

	Play(messageID string, start int) error
	SpeakFrom(messageID string, offset int) error
	PlayFromText(messageID, selected string) error
	Pause(messageID string) error
	Resume(messageID string) error
	Toggle(messageID string) error
	StopSpeaking() error
}

var _ Controller = (*chat.Orchestrator)(nil)

// Console reads commands from an input stream and renders session state to
// an output stream.
type Console struct {
	ctrl   Controller
	in     io.Reader
	router *Router
	log    *slog.Logger

	mu  sync.Mutex // guards out
	out io.Writer
}

// Option configures a [Console].
type Option func(*Console)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) { c.log = l }
}

// New creates a console driving ctrl.
func New(ctrl Controller, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{ctrl: ctrl, in: in, out: out, router: NewRouter()}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.registerCommands()
	return c
}

// Run renders state changes and executes input lines until the input ends,
// /quit is entered or ctx is cancelled.
//
// Reads from the input cannot be interrupted; after ctx ends, the reading
// goroutine exits with the next line or when the input is closed.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	states, unsubscribe := c.ctrl.Store().Subscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			c.log.Warn("console: read input", "err", err)
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		r := newRenderer(c)
		for s := range states {
			r.render(s)
		}
		return nil
	})
	g.Go(func() error {
		defer unsubscribe()
		c.println("Type a message, or /help for commands.")
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if err := c.Execute(line); errors.Is(err, ErrQuit) {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

// Execute runs one input line. Failures are printed and returned; ErrQuit
// is returned for /quit.
func (c *Console) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var err error
	if strings.HasPrefix(line, "/") {
		err = c.router.Dispatch(line)
	} else {
		err = c.ctrl.SendMessage(line)
	}
	if err != nil && !errors.Is(err, ErrQuit) {
		c.println("! " + describe(err))
	}
	return err
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, chat.ErrGenerationInFlight):
		return "Still answering, please wait"
	case errors.Is(err, chat.ErrDownloadInFlight):
		return "A download is already running"
	case errors.Is(err, chat.ErrNoModelLoaded):
		return "Please load a model first"
	case errors.Is(err, chat.ErrTextNotFound):
		return "That text is not in the message"
	case errors.Is(err, chat.ErrClosed):
		return "The session has ended"
	}
	return "Error: " + err.Error()
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(line string) { c.printf("%s\n", line) }

// ─── Argument helpers ───────────────────────────────────────────────────────

// messageAt resolves a 1-based transcript number.
func (c *Console) messageAt(arg string) (chat.Message, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("message number expected, got %q", arg)
	}
	msgs := c.ctrl.Store().Snapshot().Messages
	if n < 1 || n > len(msgs) {
		return chat.Message{}, fmt.Errorf("no message #%d (have %d)", n, len(msgs))
	}
	return msgs[n-1], nil
}

// modelID resolves a 1-based catalog number or returns arg as a model id.
func (c *Console) modelID(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("model number or id expected")
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}
	catalog := c.ctrl.Store().Snapshot().Catalog
	if n < 1 || n > len(catalog) {
		return "", fmt.Errorf("no model #%d (have %d, see /models)", n, len(catalog))
	}
	return catalog[n-1].ID, nil
}

// numberOf returns the 1-based transcript number of id, or 0.
func numberOf(s chat.State, id string) int {
	for i, m := range s.Messages {
		if m.ID == id {
			return i + 1
		}
	}
	return 0
}
