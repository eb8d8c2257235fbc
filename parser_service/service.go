package parser_service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Service routes parsing to the remote microservice when one is
// configured and falls back to in-process extraction when the remote
// call fails or no service is set.
type Service struct {
	remote *RemoteClient
	local  *LocalExtractor
	logger *slog.Logger
}

func New(remote *RemoteClient, logger *slog.Logger) *Service {
	return &Service{
		remote: remote,
		local:  NewLocalExtractor(logger),
		logger: logger,
	}
}

func (s *Service) Parse(ctx context.Context, filename string, data []byte) (*ParseResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".pdf":
		if s.remote != nil {
			result, err := s.remote.Parse(ctx, data)
			if err == nil {
				return result, nil
			}
			s.logger.Warn("Remote parse failed, falling back to local extraction",
				slog.String("filename", filename),
				slog.String("error", err.Error()))
		}
		return s.local.ExtractPDF(data)
	case ".doc", ".docx":
		return s.local.ExtractWord(data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}
