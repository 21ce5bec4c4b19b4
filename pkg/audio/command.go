package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultFrameDuration is the length of frames produced by CommandSource.
const DefaultFrameDuration = 20 * time.Millisecond

// CommandSource captures raw PCM from the stdout of an external recorder,
// e.g. "arecord -q -f S16_LE -r 16000 -c 1 -t raw".
type CommandSource struct {
	argv   []string
	format Format
	frame  time.Duration
}

var _ Source = (*CommandSource)(nil)

// NewCommandSource parses command into an argument vector. The recorder must
// write 16-bit little-endian PCM in format f to stdout.
func NewCommandSource(command string, f Format) (*CommandSource, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("audio: capture command is empty")
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid capture format %s", f)
	}
	return &CommandSource{argv: argv, format: f, frame: DefaultFrameDuration}, nil
}

// Format implements Source.
func (s *CommandSource) Format() Format { return s.format }

// Capture starts the recorder. The process is killed when ctx is cancelled.
func (s *CommandSource) Capture(ctx context.Context) (<-chan AudioFrame, error) {
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start %q: %w", s.argv[0], err)
	}

	out := make(chan AudioFrame, 16)
	go func() {
		defer close(out)
		defer func() {
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				slog.Warn("audio: capture command exited", "cmd", s.argv[0], "err", err)
			}
		}()

		size := s.format.FrameBytes(s.frame)
		var ts time.Duration
		for {
			buf := make([]byte, size)
			n, err := io.ReadFull(stdout, buf)
			if n > 0 {
				// Keep whole samples only.
				n -= n % (2 * s.format.Channels)
				f := AudioFrame{Data: buf[:n], SampleRate: s.format.SampleRate, Channels: s.format.Channels, Timestamp: ts}
				ts += f.Duration()
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// CommandSink plays raw PCM by writing it to the stdin of an external player,
// e.g. "aplay -q -f S16_LE -r 24000 -c 1 -t raw". One process is started per
// Play call.
type CommandSink struct {
	argv   []string
	format Format
}

var _ Sink = (*CommandSink)(nil)

// NewCommandSink parses command into an argument vector. The player must
// accept 16-bit little-endian PCM in format f on stdin.
func NewCommandSink(command string, f Format) (*CommandSink, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("audio: playback command is empty")
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid playback format %s", f)
	}
	return &CommandSink{argv: argv, format: f}, nil
}

// Format implements Sink.
func (s *CommandSink) Format() Format { return s.format }

// Play implements Sink. Frames in another format are converted first.
func (s *CommandSink) Play(ctx context.Context, frames <-chan AudioFrame) error {
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audio: playback pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start %q: %w", s.argv[0], err)
	}

	conv := Converter{Target: s.format}
	var writeErr error
loop:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				break loop
			}
			if writeErr != nil {
				continue
			}
			if _, err := stdin.Write(conv.Convert(f).Data); err != nil {
				writeErr = err
			}
		case <-ctx.Done():
			break loop
		}
	}
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		go Drain(frames)
		return ctx.Err()
	}
	if writeErr != nil {
		return fmt.Errorf("audio: playback write: %w", writeErr)
	}
	if waitErr != nil {
		return fmt.Errorf("audio: playback command: %w", waitErr)
	}
	return nil
}
