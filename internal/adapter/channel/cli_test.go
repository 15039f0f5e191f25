package channel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func runCLI(t *testing.T, input string, handler domain.MessageHandler, opts ...CLIOption) string {
	t.Helper()
	var out bytes.Buffer
	ch := NewCLIChannel(strings.NewReader(input), &out, nil, opts...)
	require.NoError(t, ch.Start(context.Background(), handler))

	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cli loop did not finish")
	}
	return out.String()
}

func TestCLIChannelEcho(t *testing.T) {
	var got []domain.InboundMessage
	handler := func(ctx context.Context, msg domain.InboundMessage) (domain.OutboundMessage, error) {
		got = append(got, msg)
		return echoHandler(ctx, msg)
	}

	out := runCLI(t, "alice\n\n  bob  \n", handler,
		WithPrompt(""), WithSession("s-1"), WithUser("u-1"), WithResponseMarkers(false))

	assert.Equal(t, "Hello alice\nHello bob\n", out)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[1].Content)
	assert.Equal(t, "s-1", got[0].SessionID)
	assert.Equal(t, "u-1", got[0].SenderID)
	assert.Equal(t, "cli", got[0].ChannelName)
}

func TestCLIChannelQuit(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, msg domain.InboundMessage) (domain.OutboundMessage, error) {
		calls++
		return echoHandler(ctx, msg)
	}

	out := runCLI(t, "one\n/quit\ntwo\n", handler, WithPrompt(""), WithResponseMarkers(false))
	assert.Equal(t, "Hello one\n", out)
	assert.Equal(t, 1, calls)
}

func TestCLIChannelMarkers(t *testing.T) {
	out := runCLI(t, "hi\n", echoHandler, WithPrompt(""), WithResponseMarkers(true))
	assert.Equal(t, ResponseStartMarker+"\nHello hi\n"+ResponseEndMarker+"\n", out)
}

func TestCLIChannelMarkersFromEnv(t *testing.T) {
	t.Setenv(EnvCLIResponseMarkers, "1")
	out := runCLI(t, "hi\n", echoHandler, WithPrompt(""))
	assert.Contains(t, out, ResponseStartMarker)
}

func TestCLIChannelPrompt(t *testing.T) {
	out := runCLI(t, "hi\n", echoHandler, WithResponseMarkers(false))
	assert.Equal(t, "> Hello hi\n> ", out)
}

func TestCLIChannelHandlerError(t *testing.T) {
	handler := func(context.Context, domain.InboundMessage) (domain.OutboundMessage, error) {
		return domain.OutboundMessage{}, errors.New("boom")
	}
	out := runCLI(t, "hi\nagain\n", handler, WithPrompt(""), WithResponseMarkers(false))
	assert.Equal(t, "error: boom\nerror: boom\n", out)
}

func TestCLIChannelCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	ch := NewCLIChannel(strings.NewReader("hi\n"), &out, nil, WithPrompt(""))
	require.NoError(t, ch.Start(ctx, echoHandler))
	<-ch.Done()
	assert.Empty(t, out.String())
	assert.NoError(t, ch.Stop(ctx))
	assert.Equal(t, "cli", ch.Name())
}
