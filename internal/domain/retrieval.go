package domain

// Candidate is a chunk scored against one query. Rank is 1-based and assigned
// in ascending distance order; candidates exist only for the duration of a query.
type Candidate struct {
	Chunk    Chunk
	Distance float64
	Rank     int
}

// Citation points an answer at a retrieved source. Rank matches the candidate
// rank used in the assembled context, so "[Document 2]" in the prompt and
// rank 2 in the citation list always mean the same chunk.
type Citation struct {
	Source string `json:"source"`
	Rank   int    `json:"rank"`
}
