package models

// DocumentStatus is the processing state of a Document as stored remotely.
type DocumentStatus string

const (
	StatusParsed   DocumentStatus = "parsed"
	StatusEmbedded DocumentStatus = "embedded"
)

type Document struct {
	ID     string
	Status DocumentStatus
}

// Chunk is a unit of document text. Embedding is nil until a vector has been
// computed for it.
type Chunk struct {
	ID         string
	Content    string
	DocumentID string
	Embedding  []float32
}

func (c Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
