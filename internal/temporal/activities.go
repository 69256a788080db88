package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"template-docgen/internal/domain"
	"template-docgen/internal/mapping"
	"template-docgen/internal/render"
)

const (
	errTypeNotFound          = "NotFound"
	errTypeExtraction        = "Extraction"
	errTypeSchemaUnavailable = "SchemaUnavailable"
	errTypeUnreplaced        = "UnreplacedPlaceholders"
	errTypeInvalidInput      = "InvalidInput"
)

type TemplateStore interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

type OutputStore interface {
	PutOutput(ctx context.Context, name string, content []byte) (string, error)
}

type RecordStore interface {
	GetRecord(ctx context.Context, businessID string) (domain.Record, error)
}

type IntakeStore interface {
	UpsertIntake(ctx context.Context, in domain.TemplateIntake) error
}

type SchemaExtractor interface {
	ExtractSchema(ctx context.Context, documentBytes []byte) (*domain.TemplateSchema, error)
}

type Activities struct {
	Templates TemplateStore
	Outputs   OutputStore
	Records   RecordStore
	Intake    IntakeStore
	Extractor SchemaExtractor
	Generator *render.Generator
	OutputDir string
	Logger    *slog.Logger
}

type RecordIntakeInput struct {
	TemplateID string
	Status     domain.IntakeStatus
	Name       string
	FieldCount int
	Detail     string
}

type ExtractSchemaInput struct {
	TemplateID string
}

type ExtractSchemaOutput struct {
	// Schema is nil when the model output could not be parsed.
	Schema *domain.TemplateSchema
}

type MapRecordInput struct {
	RecordID  string
	Fields    []domain.TemplateField
	Threshold float64
}

type MapRecordOutput struct {
	Mapped domain.MappedData
}

type RenderAndStoreInput struct {
	JobID          string
	TemplateString string
	Mapped         domain.MappedData
}

type RenderAndStoreOutput struct {
	OutputKey  string
	Unreplaced []string
}

func (a *Activities) RecordIntakeActivity(ctx context.Context, input RecordIntakeInput) error {
	return a.Intake.UpsertIntake(ctx, domain.TemplateIntake{
		TemplateID: input.TemplateID,
		Status:     input.Status,
		Name:       input.Name,
		FieldCount: input.FieldCount,
		Detail:     input.Detail,
	})
}

func (a *Activities) ExtractSchemaActivity(ctx context.Context, input ExtractSchemaInput) (ExtractSchemaOutput, error) {
	content, err := a.Templates.Get(ctx, input.TemplateID)
	if err != nil {
		return ExtractSchemaOutput{}, activityError(err)
	}
	schema, err := a.Extractor.ExtractSchema(ctx, content)
	if err != nil {
		return ExtractSchemaOutput{}, activityError(err)
	}
	return ExtractSchemaOutput{Schema: schema}, nil
}

func (a *Activities) MapRecordActivity(ctx context.Context, input MapRecordInput) (MapRecordOutput, error) {
	rec, err := a.Records.GetRecord(ctx, input.RecordID)
	if err != nil {
		return MapRecordOutput{}, activityError(err)
	}
	mapper := mapping.New(input.Threshold, a.logger())
	return MapRecordOutput{Mapped: mapper.MapFields(input.Fields, rec.Fields.Names(), rec.Fields)}, nil
}

func (a *Activities) RenderAndStoreActivity(ctx context.Context, input RenderAndStoreInput) (RenderAndStoreOutput, error) {
	jobID := input.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	outputPath := filepath.Join(a.OutputDir, fmt.Sprintf("Generated_Document_%s.docx", jobID))
	defer os.Remove(outputPath)

	doc, err := a.Generator.Render(input.TemplateString, input.Mapped, outputPath)
	if err != nil {
		return RenderAndStoreOutput{}, activityError(err)
	}
	content, err := os.ReadFile(doc.Path)
	if err != nil {
		return RenderAndStoreOutput{}, fmt.Errorf("read generated document: %w", err)
	}
	key, err := a.Outputs.PutOutput(ctx, jobID, content)
	if err != nil {
		return RenderAndStoreOutput{}, err
	}
	return RenderAndStoreOutput{OutputKey: key, Unreplaced: doc.Unreplaced}, nil
}

func (a *Activities) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// activityError marks failures that a retry cannot fix as non-retryable.
func activityError(err error) error {
	var unreplaced *render.UnreplacedError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeNotFound, err)
	case errors.Is(err, domain.ErrExtraction):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeExtraction, err)
	case errors.Is(err, domain.ErrInvalidInput):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidInput, err)
	case errors.As(err, &unreplaced):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeUnreplaced, err, unreplaced.Placeholders)
	default:
		return err
	}
}
