package domain

// Document is a raw corpus document before chunking.
type Document struct {
	ID   string // stable identifier, typically the relative file path
	Text string
}

// Chunk is a bounded fragment of one document. Chunks are created by the
// splitter and destroyed only by a full re-index; they are never mutated.
type Chunk struct {
	Text   string
	Source string // id of the document the chunk came from
	Seq    int    // 0-based position within the source document
	Offset int    // rune offset of the chunk start within the source
}
