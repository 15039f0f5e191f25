package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"switchboard/internal/domain"
)

// maxCLILine bounds a single line of terminal input.
const maxCLILine = 1 << 20

// CLIChannel reads one message per line from an input stream and writes each
// reply to an output stream. It backs the interactive `chat` command and
// scripted use with piped stdin.
type CLIChannel struct {
	in        io.Reader
	out       io.Writer
	sessionID string
	userID    string
	prompt    string
	markers   bool
	logger    *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

var _ domain.Channel = (*CLIChannel)(nil)

// CLIOption configures a CLIChannel.
type CLIOption func(*CLIChannel)

// WithSession sets the session ID used for every line.
func WithSession(id string) CLIOption {
	return func(c *CLIChannel) { c.sessionID = id }
}

// WithUser sets the sender ID attached to every line.
func WithUser(id string) CLIOption {
	return func(c *CLIChannel) { c.userID = id }
}

// WithPrompt sets the input prompt. An empty prompt disables it.
func WithPrompt(p string) CLIOption {
	return func(c *CLIChannel) { c.prompt = p }
}

// WithResponseMarkers wraps every reply in ResponseStartMarker and
// ResponseEndMarker so a driving process can frame multi-line output.
func WithResponseMarkers(on bool) CLIOption {
	return func(c *CLIChannel) { c.markers = on }
}

// NewCLIChannel creates a terminal channel. Markers default to the value of
// the SWITCHBOARD_CLI_RESPONSE_MARKERS environment variable.
func NewCLIChannel(in io.Reader, out io.Writer, logger *slog.Logger, opts ...CLIOption) *CLIChannel {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &CLIChannel{
		in:        in,
		out:       out,
		sessionID: "cli",
		prompt:    "> ",
		markers:   os.Getenv(EnvCLIResponseMarkers) != "",
		logger:    logger,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start launches the read loop. It returns immediately; Done is closed once
// input is exhausted, the user types /quit, or ctx is cancelled.
func (c *CLIChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	go c.loop(ctx, handler)
	return nil
}

// Done is closed when the read loop exits.
func (c *CLIChannel) Done() <-chan struct{} { return c.done }

// Stop marks the channel stopped. A blocked read on stdin cannot be
// interrupted, so the loop exits after its current line.
func (c *CLIChannel) Stop(_ context.Context) error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	return nil
}

// Name implements domain.Channel.
func (c *CLIChannel) Name() string { return "cli" }

func (c *CLIChannel) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *CLIChannel) loop(ctx context.Context, handler domain.MessageHandler) {
	defer close(c.done)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCLILine)

	for {
		if ctx.Err() != nil || c.isStopped() {
			return
		}
		if c.prompt != "" {
			fmt.Fprint(c.out, c.prompt)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.logger.Warn("cli read failed", "error", err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		}

		out, err := handler(ctx, domain.InboundMessage{
			SessionID:   c.sessionID,
			Content:     line,
			ChannelName: c.Name(),
			SenderID:    c.userID,
		})
		if err != nil {
			c.logger.Warn("cli message failed", "error", err)
			c.write(fmt.Sprintf("error: %v", err))
			continue
		}
		c.write(out.Content)
	}
}

func (c *CLIChannel) write(content string) {
	if c.markers {
		fmt.Fprintf(c.out, "%s\n%s\n%s\n", ResponseStartMarker, content, ResponseEndMarker)
		return
	}
	fmt.Fprintln(c.out, content)
}
