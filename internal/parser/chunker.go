package parser

import (
	"regexp"
	"strings"

	"handbook-rag/internal/models"
)

var (
	paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)
	// punctuation-terminated sentences, plus a trailing unterminated fragment
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)
)

// ChunkOptions bounds chunk sizes in words.
// TargetWords is advisory: chunks close on MaxWords overflow once MinWords is reached.
type ChunkOptions struct {
	TargetWords  int
	MinWords     int
	MaxWords     int
	OverlapWords int
}

func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		TargetWords:  600,
		MinWords:     400,
		MaxWords:     800,
		OverlapWords: 50,
	}
}

type chunkBuffer struct {
	parts []string
	words int
}

func (b *chunkBuffer) add(text string, words int) {
	b.parts = append(b.parts, text)
	b.words += words
}

func (b *chunkBuffer) content() string {
	return strings.TrimSpace(strings.Join(b.parts, " "))
}

// ChunkPage splits one page into overlapping chunks. Sentences are accumulated greedily;
// a chunk is closed only when the next sentence would overflow MaxWords and the buffer
// already holds MinWords. The next chunk starts with the last OverlapWords words of the
// closed one. Whatever remains at the end is flushed, even below MinWords.
func ChunkPage(docName string, page models.PageText, opts ChunkOptions) []models.Chunk {
	var chunks []models.Chunk
	var buf chunkBuffer

	emit := func(content string) {
		chunks = append(chunks, models.Chunk{
			SourceDocument: docName,
			PageNumber:     page.PageNumber,
			ChunkIndex:     len(chunks),
			Content:        content,
		})
	}

	for _, sentence := range splitSentences(page.Text) {
		sentenceWords := len(strings.Fields(sentence))

		if buf.words+sentenceWords > opts.MaxWords && buf.words >= opts.MinWords {
			closed := buf.content()
			if closed != "" {
				emit(closed)
			}
			overlap := lastWords(closed, opts.OverlapWords)
			buf = chunkBuffer{}
			if len(overlap) > 0 {
				buf.add(strings.Join(overlap, " "), len(overlap))
			}
		}
		buf.add(sentence, sentenceWords)
	}

	if rest := buf.content(); rest != "" {
		emit(rest)
	}
	return chunks
}

// splitSentences returns the trimmed, non-empty sentences of every paragraph in order
func splitSentences(text string) []string {
	var sentences []string
	for _, paragraph := range paragraphSplitRe.Split(text, -1) {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		matches := sentenceRe.FindAllString(paragraph, -1)
		if len(matches) == 0 {
			// punctuation only
			matches = []string{paragraph}
		}
		for _, s := range matches {
			if s = strings.TrimSpace(s); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	return sentences
}

func lastWords(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return words
}
