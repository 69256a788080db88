package extraction

import (
	"context"
	"errors"
	"log/slog"

	"template-docgen/internal/docx"
	"template-docgen/internal/domain"
	"template-docgen/internal/llm"
)

// Extractor derives a TemplateSchema from .docx bytes by asking the model.
type Extractor struct {
	LLM    llm.Client
	Logger *slog.Logger
}

func New(client llm.Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{LLM: client, Logger: logger}
}

// ExtractSchema returns (nil, nil) when the model answered but its output could
// not be parsed; callers treat that as "schema unavailable". Extraction and
// model-service failures are returned tagged with the extraction stage.
func (e *Extractor) ExtractSchema(ctx context.Context, documentBytes []byte) (*domain.TemplateSchema, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	text, err := docx.ExtractText(documentBytes)
	if err != nil {
		logger.Warn("schema.extract.text_failed", "error", err)
		return nil, domain.WithStage(domain.StageExtraction, err)
	}

	raw, err := e.LLM.Generate(ctx, llm.BuildPrompt(text))
	if err != nil {
		logger.Error("schema.extract.model_failed", "error", err)
		return nil, domain.WithStage(domain.StageExtraction, err)
	}

	schema, err := llm.SanitizeAndParse(raw)
	if err != nil {
		var perr *llm.ParseError
		if errors.As(err, &perr) {
			logger.Error("schema.parse_failed", "error", perr.Err, "raw", perr.Raw)
			return nil, nil
		}
		return nil, domain.WithStage(domain.StageExtraction, err)
	}

	logger.Info("schema.extract.ok", "name", schema.Name, "fields", len(schema.Fields), "text_chars", len(text))
	return schema, nil
}
