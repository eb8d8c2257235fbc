package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/serline/ruleminer/chunker"
	"github.com/serline/ruleminer/llm_service"
	"github.com/serline/ruleminer/parser_service"
	"github.com/serline/ruleminer/rule_type"
)

const summarySystemPrompt = `You summarize business documents in two or three sentences for a rules catalog. Respond with a JSON object of the form {"summary": "..."}.`

const summaryInputLimit = 6000

type Parser interface {
	Parse(ctx context.Context, filename string, data []byte) (*parser_service.ParseResult, error)
}

// Pipeline runs one document end to end: exact-reuse check, parsing,
// chunking, scheduled extraction, validation, persistence and summary.
// The overall run reports progress over 0-100: parsing owns 0-30,
// extraction 30-70, persistence and summary 70-100.
type Pipeline struct {
	chunkTargetSize int
	chunkOverlap    int
	runDeadline     time.Duration

	parser     Parser
	scheduler  *BatchScheduler
	reuse      *ReuseResolver
	documents  DocumentStore
	rules      RuleStore
	tracker    Tracker
	summarizer llm_service.CompletionService
	logger     *slog.Logger
}

func NewPipeline(parser Parser, scheduler *BatchScheduler, reuse *ReuseResolver, documents DocumentStore, rules RuleStore, tracker Tracker, summarizer llm_service.CompletionService, chunkTargetSize, chunkOverlap int, runDeadline time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		chunkTargetSize: chunkTargetSize,
		chunkOverlap:    chunkOverlap,
		runDeadline:     runDeadline,
		parser:          parser,
		scheduler:       scheduler,
		reuse:           reuse,
		documents:       documents,
		rules:           rules,
		tracker:         tracker,
		summarizer:      summarizer,
		logger:          logger,
	}
}

// Run executes the pipeline and reports the outcome through the
// tracker and the document row. It never returns an error to the
// caller; the handler launches it in a goroutine.
func (p *Pipeline) Run(ctx context.Context, doc *rule_type.Document, raw []byte) {
	if p.runDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runDeadline)
		defer cancel()
	}
	if err := p.run(ctx, doc, raw); err != nil {
		p.logger.Error("Extraction run failed",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()))
		p.tracker.MarkError(doc.ID, err.Error())
		if serr := p.documents.SetStatus(ctx, doc.ID, rule_type.StatusError); serr != nil {
			p.logger.Error("Failed to record error status",
				slog.String("document_id", doc.ID),
				slog.String("error", serr.Error()))
		}
	}
}

func (p *Pipeline) run(ctx context.Context, doc *rule_type.Document, raw []byte) error {
	p.tracker.UpdateProgress(doc.ID, 5)

	reused, err := p.reuse.Resolve(ctx, doc)
	if err != nil {
		return fmt.Errorf("exact reuse failed: %w", err)
	}
	if reused {
		p.tracker.MarkDone(doc.ID)
		return nil
	}

	if err := p.documents.SetStatus(ctx, doc.ID, rule_type.StatusParsing); err != nil {
		return err
	}

	parsed, err := p.parser.Parse(ctx, doc.Filename, raw)
	if err != nil {
		return fmt.Errorf("parsing failed: %w", err)
	}
	text := parsed.FullText()
	p.tracker.UpdateProgress(doc.ID, 30)

	if strings.TrimSpace(text) == "" {
		return errors.New("document contains no extractable text")
	}

	if err := p.documents.SetStatus(ctx, doc.ID, rule_type.StatusExtracting); err != nil {
		return err
	}

	chunks := chunker.Chunk(text, p.chunkTargetSize, p.chunkOverlap)
	result := p.scheduler.Run(ctx, doc.ID, chunks)

	if result.TotalBatches > 0 && result.FailedBatches == result.TotalBatches && len(result.Candidates) == 0 {
		return errors.New("all extraction batches failed for a non-empty document")
	}

	rules := Validate(result.Candidates)
	if err := p.rules.InsertRules(ctx, doc.ID, rules); err != nil {
		return fmt.Errorf("failed to persist rules: %w", err)
	}
	p.tracker.UpdateProgress(doc.ID, 80)

	summary := p.generateSummary(ctx, text)
	p.tracker.UpdateProgress(doc.ID, 95)

	if err := p.documents.UpdateResult(ctx, doc.ID, summary, parsed.TotalPages, rule_type.OriginExtracted, rule_type.StatusDone); err != nil {
		return err
	}
	p.tracker.MarkDone(doc.ID)

	p.logger.Info("Extraction run completed",
		slog.String("document_id", doc.ID),
		slog.Int("chunk_count", len(chunks)),
		slog.Int("batch_count", result.TotalBatches),
		slog.Int("failed_batches", result.FailedBatches),
		slog.Int("cache_hits", result.CacheHits),
		slog.Int("rule_count", len(rules)))
	return nil
}

// generateSummary makes a single, non-batched completion call. A
// failed summary never fails the run.
func (p *Pipeline) generateSummary(ctx context.Context, text string) string {
	if len(text) > summaryInputLimit {
		// Back the cut up to a rune boundary so the prompt stays
		// valid UTF-8.
		cut := summaryInputLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	raw, err := p.summarizer.Complete(ctx, summarySystemPrompt, text)
	if err != nil {
		p.logger.Warn("Summary generation failed",
			slog.String("error", err.Error()))
		return ""
	}

	var body struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &body); err != nil {
		p.logger.Warn("Summary response unparseable",
			slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(body.Summary)
}
