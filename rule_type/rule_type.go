package rule_type

import "time"

type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusParsing    RunStatus = "parsing"
	StatusExtracting RunStatus = "extracting"
	StatusDone       RunStatus = "done"
	StatusError      RunStatus = "error"
)

// DocumentOrigin records how a document obtained its rules. Exact reuse
// only ever copies from an "extracted" document, so reuse chains cannot
// form.
type DocumentOrigin string

const (
	OriginExtracted DocumentOrigin = "extracted"
	OriginReused    DocumentOrigin = "reused"
)

type Document struct {
	ID          string
	OwnerID     string
	Filename    string
	ContentHash string
	PageCount   int
	Status      RunStatus
	Origin      DocumentOrigin
	Summary     string
	CreatedAt   time.Time
}

// Chunk is a bounded-size slice of document text submitted as one unit
// of LLM input. Ordinal is informational only; correctness never
// depends on it.
type Chunk struct {
	Text    string `json:"text"`
	Ordinal int    `json:"ordinal"`
}

// Batch groups up to BatchSize chunks. It is the unit of LLM
// invocation, semantic caching and progress reporting.
type Batch struct {
	Index  int
	Chunks []Chunk
}

func (b Batch) Text() string {
	switch len(b.Chunks) {
	case 0:
		return ""
	case 1:
		return b.Chunks[0].Text
	}
	var size int
	for _, c := range b.Chunks {
		size += len(c.Text) + 2
	}
	buf := make([]byte, 0, size)
	for i, c := range b.Chunks {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, c.Text...)
	}
	return string(buf)
}

type RuleSource struct {
	Page    int    `json:"page"`
	Section string `json:"section,omitempty"`
}

// RuleCandidate is raw LLM output, prior to filtering and
// deduplication.
type RuleCandidate struct {
	Text       string     `json:"text"`
	Conditions []string   `json:"conditions"`
	Domain     string     `json:"domain,omitempty"`
	Tags       []string   `json:"tags"`
	Confidence float64    `json:"confidence"`
	Source     RuleSource `json:"source"`
}

// Rule is a validated candidate: confidence clamped to [0,1], tags
// truncated to eight, near-duplicates removed.
type Rule struct {
	Text       string     `json:"text"`
	Conditions []string   `json:"conditions"`
	Domain     string     `json:"domain,omitempty"`
	Tags       []string   `json:"tags"`
	Confidence float64    `json:"confidence"`
	Source     RuleSource `json:"source"`
}
