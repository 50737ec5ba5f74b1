// Package typecheck supervises an external watch-mode typechecker and
// republishes its status transitions on the event bus. It is advisory
// only: nothing here influences serving behavior.
package typecheck

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/unbundle/unbundle/internal/bus"
	"github.com/unbundle/unbundle/internal/logging"
)

// clearSequences are the terminal control sequences watch-mode compilers
// emit to clear the screen between passes. Seeing one means the previous
// pass's diagnostics are stale.
var clearSequences = []string{
	"\x1bc",
	"\x1b[2J",
	"\x1b[3J",
	"\x1b[H",
}

var (
	errorCountPattern = regexp.MustCompile(`Found (\d+) errors?`)
	watchingPhrase    = "atching for file changes"
)

// Watcher parses typechecker output into bus events.
type Watcher struct {
	bus    *bus.Bus
	logger logging.Logger
}

// New creates a typecheck watcher publishing on b.
func New(b *bus.Bus, logger logging.Logger) *Watcher {
	return &Watcher{
		bus:    b,
		logger: logger.WithComponent("typecheck"),
	}
}

// Run starts the configured watch-mode command and consumes its combined
// output until the process exits or ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty typecheck command")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting typecheck command %q: %w", command, err)
	}

	w.logger.Info(ctx, "typecheck process started", "command", command)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
		pw.Close()
	}()

	w.Consume(pr)

	err := <-done
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("typecheck command exited: %w", err)
	}

	return nil
}

// Consume reads chunks from r until EOF, publishing the events each chunk
// implies. Malformed output is forwarded verbatim rather than dropped.
func (w *Watcher) Consume(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w.processChunk(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// processChunk handles one raw chunk of typechecker output.
func (w *Watcher) processChunk(chunk string) {
	cleaned := chunk
	cleared := false
	for _, seq := range clearSequences {
		if strings.Contains(cleaned, seq) {
			cleared = true
			cleaned = strings.ReplaceAll(cleaned, seq, "")
		}
	}

	if cleared {
		w.bus.Publish(bus.TypecheckReset{})
	}

	if match := errorCountPattern.FindStringSubmatch(cleaned); match != nil {
		count, err := strconv.Atoi(match[1])
		if err == nil {
			w.bus.Publish(bus.TypecheckErrorCount{Count: count})
		}
	}

	if text := strings.TrimSpace(cleaned); text != "" {
		w.bus.Publish(bus.TypecheckMessage{Text: text})
	}

	if strings.Contains(cleaned, watchingPhrase) {
		w.bus.Publish(bus.TypecheckDone{})
	}
}
