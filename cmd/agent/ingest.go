package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"switchboard/internal/domain"
)

// embedBatch bounds the number of chunks sent in one embedding request.
const embedBatch = 64

// chunkIndex is the subset of the document store ingestion needs.
type chunkIndex interface {
	Add(ctx context.Context, chunks []domain.DocumentChunk) error
	DeleteSource(ctx context.Context, userID, source string) (int, error)
}

// ingestFile replaces every chunk of path owned by userID with freshly
// embedded chunks of its current contents. Returns the number stored.
func ingestFile(ctx context.Context, store chunkIndex, embedder domain.EmbeddingProvider, userID, path string, chunkSize int) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return 0, fmt.Errorf("%s: not UTF-8 text: %w", path, domain.ErrInvalidInput)
	}

	source := filepath.Base(path)
	chunks := chunkText(string(data), chunkSize)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%s: no text: %w", path, domain.ErrInvalidInput)
	}

	docs := make([]domain.DocumentChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatch {
		end := min(start+embedBatch, len(chunks))
		vecs, err := embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return 0, fmt.Errorf("embed %s: %w", source, err)
		}
		if len(vecs) != end-start {
			return 0, fmt.Errorf("embed %s: got %d vectors for %d chunks: %w",
				source, len(vecs), end-start, domain.ErrEmbeddingFailed)
		}
		for i, v := range vecs {
			docs = append(docs, domain.DocumentChunk{
				ID:        fmt.Sprintf("%s:%s:%d", userID, source, start+i),
				UserID:    userID,
				Source:    source,
				Content:   chunks[start+i],
				Embedding: v,
			})
		}
	}

	if _, err := store.DeleteSource(ctx, userID, source); err != nil {
		return 0, fmt.Errorf("replace %s: %w", source, err)
	}
	if err := store.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("store %s: %w", source, err)
	}
	return len(docs), nil
}

// runIngest is the `ingest` command.
func runIngest(ctx context.Context, a *app, userID string, paths []string, out io.Writer) error {
	if len(paths) == 0 {
		return errors.New("usage: switchboard ingest [--user ID] FILE...")
	}
	if a.documents == nil {
		return errors.New("documents are disabled (set documents.enabled: true)")
	}
	if a.embedder == nil {
		return errors.New("no embedding provider configured (set embedding.provider)")
	}
	if userID == "" {
		userID = a.cfg.Documents.UserID
	}

	for _, p := range paths {
		n, err := ingestFile(ctx, a.documents, a.embedder, userID, p, a.cfg.Documents.ChunkSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d chunks\n", p, n)
	}
	return nil
}

// chunkText splits text into pieces of at most size runes. Paragraph breaks
// are preferred; an oversized paragraph is cut at the last space that fits.
func chunkText(text string, size int) []string {
	if size <= 0 {
		size = 1000
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		curLen := utf8.RuneCountInString(cur.String())
		paraLen := utf8.RuneCountInString(para)

		if curLen > 0 && curLen+2+paraLen > size {
			flush()
			curLen = 0
		}
		if paraLen <= size {
			if curLen > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(para)
			continue
		}

		flush()
		chunks = append(chunks, splitRunes(para, size)...)
	}
	flush()
	return chunks
}

func splitRunes(s string, size int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > size {
		cut := size
		for i := size; i > size/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = runes[cut:]
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		out = append(out, piece)
	}
	return out
}
