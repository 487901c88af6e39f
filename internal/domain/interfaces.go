package domain

import "context"

// Metadata is attached to every stored document.
type Metadata struct {
	Page int `json:"page"`
}

// StoredDocument is a chunk owned by a collection once added.
type StoredDocument struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata Metadata
}

// Match is a stored document returned by a similarity search.
type Match struct {
	Document StoredDocument
	Score    float64
}

// SourceKind tags the variant held by a Source.
type SourceKind int

const (
	SourceText SourceKind = iota + 1
	SourceFile
	SourceURL
)

func (k SourceKind) String() string {
	switch k {
	case SourceText:
		return "text"
	case SourceFile:
		return "file"
	case SourceURL:
		return "url"
	default:
		return "unknown"
	}
}

// Source is the material to ingest: raw text, a local PDF path or a PDF URL.
type Source struct {
	Kind  SourceKind
	Value string
}

// TextSource wraps raw text.
func TextSource(text string) Source { return Source{Kind: SourceText, Value: text} }

// FileSource wraps a local PDF path.
func FileSource(path string) Source { return Source{Kind: SourceFile, Value: path} }

// URLSource wraps a PDF URL.
func URLSource(url string) Source { return Source{Kind: SourceURL, Value: url} }

// Chunker splits normalized text into ordered chunk strings.
type Chunker interface {
	Split(text string) ([]string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Embedder converts ordered texts into one vector per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
	Dimension() int
	ModelName() string
}
