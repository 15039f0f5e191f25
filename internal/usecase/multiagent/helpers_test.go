package multiagent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"switchboard/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubAgent is a configurable test agent that counts its calls and keeps
// the last context and input it saw.
type stubAgent struct {
	name   string
	output string
	conf   float64
	err    error
	panics bool
	block  bool // wait for ctx cancellation

	calls  atomic.Int32
	mu     sync.Mutex
	lastAC *domain.AgentContext
	lastIn string
}

func newStub(name, output string, conf float64) *stubAgent {
	return &stubAgent{name: name, output: output, conf: conf}
}

func (s *stubAgent) Name() string        { return s.name }
func (s *stubAgent) Description() string { return "stub " + s.name }

func (s *stubAgent) Handle(ctx context.Context, input string, ac *domain.AgentContext, _ domain.CallFunc) (domain.AgentResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastAC, s.lastIn = ac, input
	s.mu.Unlock()

	if s.panics {
		panic("stub " + s.name + " exploded")
	}
	if s.block {
		<-ctx.Done()
		return domain.AgentResult{}, ctx.Err()
	}
	if s.err != nil {
		return domain.AgentResult{}, s.err
	}
	return domain.AgentResult{Output: s.output, Confidence: s.conf}, nil
}

func (s *stubAgent) input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIn
}

// scriptedModel returns a fixed reply and counts invocations.
type scriptedModel struct {
	reply string
	err   error
	calls atomic.Int32
}

func (m *scriptedModel) Invoke(_ context.Context, _ string) (string, error) {
	m.calls.Add(1)
	return m.reply, m.err
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(_ domain.EventType, _ domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(_ domain.EventHandler) func()                  { return func() {} }
func (b *recordingBus) Close()                                                     {}

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var errBoom = errors.New("boom")

func newTestRegistry(t *testing.T, agents ...domain.Agent) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			t.Fatalf("Register(%s): %v", a.Name(), err)
		}
	}
	return r
}

const longAnswer = "This is a complete and sufficiently detailed answer for the user."
