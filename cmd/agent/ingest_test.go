package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func TestChunkText(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{"empty", "  \n\n ", 100, nil},
		{"single paragraph", "hello world", 100, []string{"hello world"}},
		{"paragraphs merged", "one\n\ntwo\n\nthree", 100, []string{"one\n\ntwo\n\nthree"}},
		{"paragraphs split at size", "aaaa\n\nbbbb\n\ncccc", 10, []string{"aaaa\n\nbbbb", "cccc"}},
		{"crlf normalised", "one\r\n\r\ntwo", 100, []string{"one\n\ntwo"}},
		{"long paragraph cut at space", "alpha beta gamma delta", 12, []string{"alpha beta", "gamma delta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkText(tt.text, tt.size))
		})
	}
}

func TestChunkTextRespectsSize(t *testing.T) {
	text := strings.Repeat("palabra año ", 500) + "\n\n" + strings.Repeat("x", 2500)
	for _, c := range chunkText(text, 100) {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
		assert.NotEmpty(t, c)
	}
}

func TestChunkTextDefaultSize(t *testing.T) {
	chunks := chunkText(strings.Repeat("y", 1500), 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 1000)
}

type recordingIndex struct {
	added   []domain.DocumentChunk
	deleted []string
	failAdd error
}

func (r *recordingIndex) Add(_ context.Context, chunks []domain.DocumentChunk) error {
	if r.failAdd != nil {
		return r.failAdd
	}
	r.added = append(r.added, chunks...)
	return nil
}

func (r *recordingIndex) DeleteSource(_ context.Context, userID, source string) (int, error) {
	r.deleted = append(r.deleted, userID+"/"+source)
	return 0, nil
}

type stubEmbedder struct {
	calls int
	short bool
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	n := len(texts)
	if s.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 2 }
func (s *stubEmbedder) Name() string    { return "stub" }

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestIngestFile(t *testing.T) {
	path := writeDoc(t, "plan.txt", "first part\n\nsecond part")
	idx := &recordingIndex{}
	emb := &stubEmbedder{}

	n, err := ingestFile(context.Background(), idx, emb, "ana", path, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ana/plan.txt"}, idx.deleted)
	require.Len(t, idx.added, 2)
	assert.Equal(t, "ana:plan.txt:0", idx.added[0].ID)
	assert.Equal(t, "second part", idx.added[1].Content)
	assert.Equal(t, "plan.txt", idx.added[1].Source)
	assert.Equal(t, "ana", idx.added[1].UserID)
	assert.NotEmpty(t, idx.added[1].Embedding)
}

func TestIngestFileBatches(t *testing.T) {
	var sb strings.Builder
	for range embedBatch + 6 {
		sb.WriteString("paragraph text\n\n")
	}
	path := writeDoc(t, "long.txt", sb.String())
	emb := &stubEmbedder{}

	n, err := ingestFile(context.Background(), &recordingIndex{}, emb, "u", path, 15)
	require.NoError(t, err)
	assert.Equal(t, embedBatch+6, n)
	assert.Equal(t, 2, emb.calls)
}

func TestIngestFileErrors(t *testing.T) {
	ctx := context.Background()

	_, err := ingestFile(ctx, &recordingIndex{}, &stubEmbedder{}, "u", filepath.Join(t.TempDir(), "missing.txt"), 100)
	assert.ErrorContains(t, err, "read")

	_, err = ingestFile(ctx, &recordingIndex{}, &stubEmbedder{}, "u", writeDoc(t, "blank.txt", "\n\n  "), 100)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ingestFile(ctx, &recordingIndex{}, &stubEmbedder{}, "u", writeDoc(t, "bin.dat", "\xff\xfe\x00"), 100)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ingestFile(ctx, &recordingIndex{}, &stubEmbedder{short: true}, "u", writeDoc(t, "a.txt", "text"), 100)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)

	boom := errors.New("disk full")
	_, err = ingestFile(ctx, &recordingIndex{failAdd: boom}, &stubEmbedder{}, "u", writeDoc(t, "b.txt", "text"), 100)
	assert.ErrorIs(t, err, boom)
}
