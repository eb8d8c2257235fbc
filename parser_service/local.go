package parser_service

import (
	"bytes"
	"fmt"
	"log/slog"

	"code.sajari.com/docconv/v2"
	"github.com/ledongthuc/pdf"
)

// LocalExtractor parses documents in-process. It backs up the remote
// parse service for PDFs and is the only path for Word documents.
type LocalExtractor struct {
	logger *slog.Logger
}

func NewLocalExtractor(logger *slog.Logger) *LocalExtractor {
	return &LocalExtractor{
		logger: logger,
	}
}

func (e *LocalExtractor) ExtractPDF(data []byte) (*ParseResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Error("Failed to create PDF reader",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return nil, fmt.Errorf("failed to create PDF reader: %v", err)
	}

	totalPage := reader.NumPage()
	e.logger.Debug("Starting PDF text extraction",
		slog.Int("total_pages", totalPage))

	result := &ParseResult{TotalPages: totalPage}
	var extracted int
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			e.logger.Warn("Null page encountered",
				slog.Int("page_number", pageIndex))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Error("Failed to extract text from page",
				slog.Int("page_number", pageIndex),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to extract text from page %d: %v", pageIndex, err)
		}

		result.Pages = append(result.Pages, Page{Page: pageIndex, Text: text})
		extracted += len(text)
	}

	if extracted == 0 {
		e.logger.Error("No text extracted from PDF",
			slog.Int("total_pages", totalPage))
		return nil, fmt.Errorf("no text content extracted from PDF")
	}

	e.logger.Info("Successfully extracted text from PDF",
		slog.Int("total_pages", totalPage),
		slog.Int("total_text_length", extracted))

	return result, nil
}

func (e *LocalExtractor) ExtractWord(data []byte) (*ParseResult, error) {
	e.logger.Debug("Starting Word document text extraction",
		slog.Int("data_size", len(data)))

	mimeType := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	result, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		e.logger.Error("Failed to convert Word document",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return nil, fmt.Errorf("failed to convert Word document: %v", err)
	}

	if len(result.Body) == 0 {
		e.logger.Error("No text extracted from Word document")
		return nil, fmt.Errorf("no text content extracted from Word document")
	}

	e.logger.Info("Successfully extracted text from Word document",
		slog.Int("text_length", len(result.Body)))

	return &ParseResult{
		Pages:      []Page{{Page: 1, Text: result.Body}},
		TotalPages: 1,
	}, nil
}
