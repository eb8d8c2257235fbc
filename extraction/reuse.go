package extraction

import (
	"context"
	"log/slog"

	"github.com/serline/ruleminer/rule_type"
)

type DocumentStore interface {
	FindReusableDocument(ctx context.Context, contentHash, ownerID, excludeID string) (*rule_type.Document, error)
	SetStatus(ctx context.Context, id string, status rule_type.RunStatus) error
	UpdateResult(ctx context.Context, id, summary string, pageCount int, origin rule_type.DocumentOrigin, status rule_type.RunStatus) error
}

type RuleStore interface {
	InsertRules(ctx context.Context, documentID string, rules []rule_type.Rule) error
	CopyRules(ctx context.Context, fromDocumentID, toDocumentID string) (int, error)
}

// ReuseResolver short-circuits the pipeline when the same owner has
// already extracted a byte-identical document. Only documents that
// were themselves originally extracted qualify as sources, so a reuse
// can never chain through another reuse.
type ReuseResolver struct {
	enabled   bool
	documents DocumentStore
	rules     RuleStore
	logger    *slog.Logger
}

func NewReuseResolver(documents DocumentStore, rules RuleStore, enabled bool, logger *slog.Logger) *ReuseResolver {
	return &ReuseResolver{
		enabled:   enabled,
		documents: documents,
		rules:     rules,
		logger:    logger,
	}
}

// Resolve returns true when rules were copied from a prior run and the
// document was marked done. A failed lookup falls open to the regular
// extraction path; failed writes propagate, since the document would
// otherwise be half-reused.
func (r *ReuseResolver) Resolve(ctx context.Context, doc *rule_type.Document) (bool, error) {
	if !r.enabled {
		return false, nil
	}

	prior, err := r.documents.FindReusableDocument(ctx, doc.ContentHash, doc.OwnerID, doc.ID)
	if err != nil {
		r.logger.Warn("Reuse lookup failed, falling back to extraction",
			slog.String("document_id", doc.ID),
			slog.String("error", err.Error()))
		return false, nil
	}
	if prior == nil {
		return false, nil
	}

	count, err := r.rules.CopyRules(ctx, prior.ID, doc.ID)
	if err != nil {
		return false, err
	}
	if err := r.documents.UpdateResult(ctx, doc.ID, prior.Summary, prior.PageCount, rule_type.OriginReused, rule_type.StatusDone); err != nil {
		return false, err
	}

	r.logger.Info("Reused rules from prior extraction",
		slog.String("document_id", doc.ID),
		slog.String("source_document_id", prior.ID),
		slog.Int("rule_count", count))
	return true, nil
}
