package rag

import (
	"fmt"
	"regexp"
	"strings"

	"handbook-rag/internal/models"
)

// DocumentNamer turns a stored document identifier into a label for prompts and sources.
// Implementations must be total: unknown identifiers come back unchanged.
type DocumentNamer interface {
	Name(raw string) string
}

// IdentityNamer leaves identifiers as they are
type IdentityNamer struct{}

func (IdentityNamer) Name(raw string) string { return raw }

var (
	handbookLevels = map[string]string{
		"elementary":   "Elementary",
		"middleschool": "Middle School",
		"highschool":   "High School",
	}
	handbookLanguages = map[string]string{
		"english": "English",
		"spanish": "Spanish",
	}
)

// HandbookNamer rewrites generated handbook filenames such as
// "LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt" into "High School Handbook (English)".
// Identifiers that only partly match (unknown grade level or language) pass through unchanged.
type HandbookNamer struct {
	re *regexp.Regexp
}

func NewHandbookNamer() *HandbookNamer {
	return &HandbookNamer{re: regexp.MustCompile(models.HandbookNameRegex)}
}

func (n *HandbookNamer) Name(raw string) string {
	m := n.re.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	level := handbookLevels[strings.ToLower(m[1])]
	language := handbookLanguages[strings.ToLower(m[2])]
	return fmt.Sprintf("%s Handbook (%s)", level, language)
}

// PromptBuilder renders retrieved chunks and the question into one context block
type PromptBuilder struct {
	namer DocumentNamer
}

func NewPromptBuilder(namer DocumentNamer) *PromptBuilder {
	if namer == nil {
		namer = IdentityNamer{}
	}
	return &PromptBuilder{namer: namer}
}

// Build numbers chunks from 1 in input order:
//
//	[1] (High School Handbook (English), p.12)
//	"chunk content"
func (b *PromptBuilder) Build(chunks []models.RetrievedChunk, question string) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[%d] (%s, p.%d)\n\"%s\"", i+1, b.namer.Name(c.SourceDocument), c.PageNumber, c.Content)
	}
	return fmt.Sprintf(models.PromptTemplate, strings.Join(parts, "\n\n"), question)
}

// Sources maps retrieved chunks to caller-facing sources, keeping order
func (b *PromptBuilder) Sources(chunks []models.RetrievedChunk) []models.Source {
	sources := make([]models.Source, len(chunks))
	for i, c := range chunks {
		sources[i] = models.Source{
			DocName: b.namer.Name(c.SourceDocument),
			Page:    c.PageNumber,
			Content: c.Content,
		}
	}
	return sources
}

var defaultPrompts = NewPromptBuilder(NewHandbookNamer())

// BuildPrompt renders a prompt with the handbook naming policy
func BuildPrompt(chunks []models.RetrievedChunk, question string) string {
	return defaultPrompts.Build(chunks, question)
}
