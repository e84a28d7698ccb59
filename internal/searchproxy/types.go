package searchproxy

// Chunk is one unit written to the search index. Personal uploads carry
// the owner's fingerprint; regulatory chunks written through the
// trusted indexing path have no owner and are visible to everyone.
type Chunk struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	Source           string    `json:"source"`
	DocType          string    `json:"doc_type"`
	Citation         string    `json:"citation,omitempty"`
	OwnerFingerprint string    `json:"owner_fingerprint,omitempty"`
	UploadedAt       string    `json:"uploaded_at,omitempty"`
	PageCount        int       `json:"page_count,omitempty"`
	FileHash         string    `json:"file_hash,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
}

type SearchResult struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Content          string  `json:"content"`
	Source           string  `json:"source"`
	DocType          string  `json:"doc_type,omitempty"`
	Citation         string  `json:"citation,omitempty"`
	OwnerFingerprint string  `json:"owner_fingerprint,omitempty"`
	Score            float64 `json:"score,omitempty"`
}

type IndexResult struct {
	IndexedCount int      `json:"indexed_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors,omitempty"`
}

// DocumentInfo is one summary row per uploaded document, aggregated
// across its chunks.
type DocumentInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Filename   string `json:"filename,omitempty"`
	UploadedAt string `json:"uploaded_at"`
	PageCount  int    `json:"page_count,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	FileHash   string `json:"file_hash,omitempty"`
}

// DocumentContent is a full document reassembled from its ordered
// chunks.
type DocumentContent struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	PageCount  int    `json:"page_count,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	UploadedAt string `json:"uploaded_at"`
	TotalChars int    `json:"total_chars"`
}
