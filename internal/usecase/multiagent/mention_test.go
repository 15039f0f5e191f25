package multiagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixRouter(t *testing.T) {
	r := newTestRegistry(t, newStub("research", "", 0), newStub("general", "", 0))
	pr := NewPrefixRouter(r, nil)

	agent, rest, ok := pr.Route("@research who is Ada Lovelace", nil)
	assert.True(t, ok)
	assert.Equal(t, "research", agent)
	assert.Equal(t, "who is Ada Lovelace", rest)

	agent, _, ok = pr.Route("@Research: latest news", []string{"research"})
	assert.True(t, ok)
	assert.Equal(t, "research", agent)
}

func TestPrefixRouterNoMatch(t *testing.T) {
	r := newTestRegistry(t, newStub("research", "", 0), newStub("general", "", 0))
	pr := NewPrefixRouter(r, nil)

	for _, tc := range []struct {
		query      string
		candidates []string
	}{
		{"just a question", nil},
		{"@unknown hello", nil},
		{"@ hello", nil},
		{"@research hello", []string{"general"}},
		{"@research", nil},
		{"  @research:  ", nil},
	} {
		_, rest, ok := pr.Route(tc.query, tc.candidates)
		assert.False(t, ok, tc.query)
		assert.Equal(t, tc.query, rest)
	}
}
