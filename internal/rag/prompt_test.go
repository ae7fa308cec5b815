package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook-rag/internal/models"
)

func retrieved(doc string, page int, content string, sim float64) models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk:      models.Chunk{SourceDocument: doc, PageNumber: page, Content: content},
		Similarity: sim,
	}
}

func TestHandbookNamer(t *testing.T) {
	namer := NewHandbookNamer()
	tests := []struct {
		raw  string
		want string
	}{
		{"LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt", "High School Handbook (English)"},
		{"LincolnHandbook2024ElementarySpanish", "Elementary Handbook (Spanish)"},
		{"lincolnhandbook2025middleschoolenglish_v2", "Middle School Handbook (English)"},
		{"LincolnHandbook2025PreschoolEnglish", "LincolnHandbook2025PreschoolEnglish"},
		{"LincolnHandbook2025HighSchoolFrench", "LincolnHandbook2025HighSchoolFrench"},
		{"bell-schedule", "bell-schedule"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, namer.Name(tt.raw))
		})
	}
}

func TestHandbookNamerIdempotent(t *testing.T) {
	namer := NewHandbookNamer()
	for _, raw := range []string{
		"LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt",
		"LincolnHandbook2024ElementarySpanish",
		"LincolnHandbook2025PreschoolEnglish",
		"LincolnHandbook2025HighSchoolFrench",
		"High School Handbook (English)",
		"bell-schedule",
	} {
		t.Run(raw, func(t *testing.T) {
			once := namer.Name(raw)
			assert.Equal(t, once, namer.Name(once))
		})
	}
}

func TestPromptBuilder(t *testing.T) {
	t.Run("ShouldLabelChunksInRetrievalOrder", func(t *testing.T) {
		chunks := []models.RetrievedChunk{
			retrieved("LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt", 12, "Cell phones must be silenced during class.", 0.91),
			retrieved("LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt", 13, "Devices may be confiscated.", 0.84),
		}
		prompt := BuildPrompt(chunks, "What is the cell phone policy?")

		want := "CONTEXT:\n" +
			"[1] (High School Handbook (English), p.12)\n\"Cell phones must be silenced during class.\"\n\n" +
			"[2] (High School Handbook (English), p.13)\n\"Devices may be confiscated.\"" +
			"\n\nQUESTION:\nWhat is the cell phone policy?"
		assert.Equal(t, want, prompt)
	})

	t.Run("ShouldBeDeterministic", func(t *testing.T) {
		chunks := []models.RetrievedChunk{retrieved("doc", 1, "a", 0.5)}
		assert.Equal(t, BuildPrompt(chunks, "q"), BuildPrompt(chunks, "q"))
	})

	t.Run("ShouldKeepUnknownNamesWithIdentityNamer", func(t *testing.T) {
		b := NewPromptBuilder(nil)
		prompt := b.Build([]models.RetrievedChunk{retrieved("LincolnHandbook2025HighSchoolEnglish", 3, "x", 0.1)}, "q")
		assert.True(t, strings.Contains(prompt, "[1] (LincolnHandbook2025HighSchoolEnglish, p.3)"))
	})

	t.Run("ShouldMapSourcesInOrder", func(t *testing.T) {
		chunks := []models.RetrievedChunk{
			retrieved("LincolnHandbook2024ElementarySpanish", 4, "uno", 0.9),
			retrieved("calendar", 1, "dos", 0.8),
		}
		sources := NewPromptBuilder(NewHandbookNamer()).Sources(chunks)
		require.Len(t, sources, 2)
		assert.Equal(t, models.Source{DocName: "Elementary Handbook (Spanish)", Page: 4, Content: "uno"}, sources[0])
		assert.Equal(t, models.Source{DocName: "calendar", Page: 1, Content: "dos"}, sources[1])
	})
}
