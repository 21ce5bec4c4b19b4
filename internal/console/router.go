package console

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned by [Router.Dispatch] for unregistered
// commands.
var ErrUnknownCommand = errors.New("console: unknown command")

// HandlerFunc handles one slash command. args is the raw text following the
// command name, with surrounding whitespace removed.
type HandlerFunc func(args string) error

type commandEntry struct {
	usage   string
	help    string
	handler HandlerFunc
}

// Router dispatches slash commands to registered handlers.
type Router struct {
	mu       sync.RWMutex
	commands map[string]commandEntry
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{commands: make(map[string]commandEntry)}
}

// Register adds a handler for "/name". usage is the argument synopsis shown
// by Help (e.g. "N [pos]"); help is a one-line description.
func (r *Router) Register(name, usage, help string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = commandEntry{usage: usage, help: help, handler: handler}
}

// Dispatch runs the handler for line, which must start with "/".
func (r *Router) Dispatch(line string) error {
	name, args, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(line), "/"), " ")
	name = strings.ToLower(name)

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
	return entry.handler(strings.TrimSpace(args))
}

// Help returns one line per command, sorted by name.
func (r *Router) Help() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		e := r.commands[name]
		synopsis := "/" + name
		if e.usage != "" {
			synopsis += " " + e.usage
		}
		lines = append(lines, fmt.Sprintf("  %-20s %s", synopsis, e.help))
	}
	return lines
}
