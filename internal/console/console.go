package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

const (
	prompt      = "> "
	quitCommand = "quit"
)

// Outbox receives operator lines for relay
type Outbox interface {
	Enqueue(payload []byte)
}

// Console reads operator input. Lines are relayed verbatim; "quit", Ctrl-C
// or EOF at a terminal request shutdown. EOF on piped or detached stdin only
// closes the console.
type Console struct {
	outbox      Outbox
	onQuit      func()
	logger      *zap.Logger
	interactive bool
}

// NewConsole creates a console. onQuit is called once when the operator
// asks to stop.
func NewConsole(outbox Outbox, onQuit func(), logger *zap.Logger) *Console {
	return &Console{
		outbox:      outbox,
		onQuit:      onQuit,
		logger:      logger.Named("console"),
		interactive: readline.DefaultIsTerminal(),
	}
}

// Run reads lines until the operator quits or ctx is done
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       quitCommand,
		HistoryLimit:    200,
	})
	if err != nil {
		return fmt.Errorf("open console: %w", err)
	}
	// Closing the instance unblocks a pending Readline
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return c.endOfInput(err)
		}

		if c.handleLine(line) {
			c.quit()
			return nil
		}
	}
}

// endOfInput decides what a failed read means for the process
func (c *Console) endOfInput(err error) error {
	switch {
	case errors.Is(err, readline.ErrInterrupt):
		c.quit()
	case errors.Is(err, io.EOF) && c.interactive:
		c.quit()
	case errors.Is(err, io.EOF):
		c.logger.Info("console input closed")
	default:
		return fmt.Errorf("read console: %w", err)
	}
	return nil
}

// handleLine relays one operator line and reports whether it asked to quit
func (c *Console) handleLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case "":
		return false
	case quitCommand:
		return true
	}

	c.outbox.Enqueue([]byte(line))
	c.logger.Info("operator payload queued", zap.String("payload", line))
	return false
}

func (c *Console) quit() {
	c.logger.Info("quit requested")
	if c.onQuit != nil {
		c.onQuit()
	}
}
