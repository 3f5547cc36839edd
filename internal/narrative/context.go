package narrative

// ContextChunk is a piece of retrieved knowledge-base text for prompt
// assembly. It mirrors rag.ContextChunk but is defined here to keep the
// narrative package free of storage dependencies.
type ContextChunk struct {
	Source string
	Text   string
	Score  float32
}

// ReviewContext is the auxiliary material a review is generated with.
type ReviewContext struct {
	// Static is the aggregated static-analysis output.
	Static string

	// Chunks are retrieved knowledge-base passages.
	Chunks []ContextChunk
}

// Text renders the retrieved chunks as one block, most relevant first.
func (c ReviewContext) Text() string {
	return renderChunks(sortedChunks(c.Chunks))
}
