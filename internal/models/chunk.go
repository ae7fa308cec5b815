package models

// PageText is the raw text of one physical page of a source document
type PageText struct {
	PageNumber int
	Text       string
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	SourceDocument string
	PageNumber     int
	ChunkIndex     int
	Content        string
}

// RetrievedChunk is a stored chunk returned by a similarity search
type RetrievedChunk struct {
	Chunk
	Similarity float64
}

// Source is a retrieved chunk as shown to the caller
type Source struct {
	DocName string `json:"doc_name"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// AnswerResult is what the pipeline returns for one question
type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
