package temporal

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"template-docgen/internal/domain"
)

const (
	TemplateIntakeWorkflowName     = "TemplateIntakeWorkflow"
	GenerateFromRecordWorkflowName = "GenerateFromRecordWorkflow"
)

type TemplateIntakeInput struct {
	TemplateID string
}

type TemplateIntakeResult struct {
	TemplateID string
	Status     domain.IntakeStatus
	Name       string
	FieldCount int
}

type GenerateInput struct {
	TemplateID string
	RecordID   string
	Threshold  float64
}

type GenerateResult struct {
	SchemaName string
	OutputKey  string
	Unreplaced []string
}

func IntakeWorkflowID(prefix, templateID string) string {
	return fmt.Sprintf("%s-intake-%s", prefix, templateID)
}

func GenerateWorkflowID(prefix, jobID string) string {
	return fmt.Sprintf("%s-generate-%s", prefix, jobID)
}

// TemplateIntakeWorkflow records whether a freshly uploaded template yields a
// schema. The schema itself is not kept; generation always extracts again.
func TemplateIntakeWorkflow(ctx workflow.Context, input TemplateIntakeInput) (TemplateIntakeResult, error) {
	ctxRecord := mustActivityContext(ctx, ActivityPolicyRecordIntake)
	ctxExtract := mustActivityContext(ctx, ActivityPolicyExtractSchema)

	if err := workflow.ExecuteActivity(ctxRecord, (*Activities).RecordIntakeActivity, RecordIntakeInput{
		TemplateID: input.TemplateID,
		Status:     domain.IntakeReceived,
	}).Get(ctx, nil); err != nil {
		return TemplateIntakeResult{}, err
	}

	var extracted ExtractSchemaOutput
	if err := workflow.ExecuteActivity(ctxExtract, (*Activities).ExtractSchemaActivity, ExtractSchemaInput{
		TemplateID: input.TemplateID,
	}).Get(ctx, &extracted); err != nil {
		if recErr := workflow.ExecuteActivity(ctxRecord, (*Activities).RecordIntakeActivity, RecordIntakeInput{
			TemplateID: input.TemplateID,
			Status:     domain.IntakeFailed,
			Detail:     rootMessage(err),
		}).Get(ctx, nil); recErr != nil {
			return TemplateIntakeResult{}, recErr
		}
		return TemplateIntakeResult{}, err
	}

	result := TemplateIntakeResult{TemplateID: input.TemplateID, Status: domain.IntakeUnparseable}
	detail := domain.ErrSchemaUnavailable.Error()
	if extracted.Schema != nil {
		result.Status = domain.IntakeParsed
		result.Name = extracted.Schema.Name
		result.FieldCount = len(extracted.Schema.Fields)
		detail = ""
	}

	if err := workflow.ExecuteActivity(ctxRecord, (*Activities).RecordIntakeActivity, RecordIntakeInput{
		TemplateID: input.TemplateID,
		Status:     result.Status,
		Name:       result.Name,
		FieldCount: result.FieldCount,
		Detail:     detail,
	}).Get(ctx, nil); err != nil {
		return TemplateIntakeResult{}, err
	}
	return result, nil
}

// GenerateFromRecordWorkflow extracts the template schema, maps a stored
// record onto it and uploads the rendered document.
func GenerateFromRecordWorkflow(ctx workflow.Context, input GenerateInput) (GenerateResult, error) {
	progress := GenerationProgress{Stage: StageExtractingSchema}
	if err := workflow.SetQueryHandler(ctx, ProgressQueryName, func() (GenerationProgress, error) {
		return progress, nil
	}); err != nil {
		return GenerateResult{}, err
	}
	fail := func(err error) (GenerateResult, error) {
		progress.Stage = StageFailed
		progress.Error = rootMessage(err)
		return GenerateResult{}, err
	}

	var extracted ExtractSchemaOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyExtractSchema), (*Activities).ExtractSchemaActivity, ExtractSchemaInput{
		TemplateID: input.TemplateID,
	}).Get(ctx, &extracted); err != nil {
		return fail(err)
	}
	if extracted.Schema == nil {
		return fail(temporal.NewNonRetryableApplicationError(domain.ErrSchemaUnavailable.Error(), errTypeSchemaUnavailable, nil))
	}
	progress.SchemaName = extracted.Schema.Name

	progress.Stage = StageMappingRecord
	var mapped MapRecordOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyMapRecord), (*Activities).MapRecordActivity, MapRecordInput{
		RecordID:  input.RecordID,
		Fields:    extracted.Schema.Fields,
		Threshold: input.Threshold,
	}).Get(ctx, &mapped); err != nil {
		return fail(err)
	}

	progress.Stage = StageRendering
	var rendered RenderAndStoreOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyRenderAndStore), (*Activities).RenderAndStoreActivity, RenderAndStoreInput{
		JobID:          workflow.GetInfo(ctx).WorkflowExecution.ID,
		TemplateString: extracted.Schema.TemplateString,
		Mapped:         mapped.Mapped,
	}).Get(ctx, &rendered); err != nil {
		return fail(err)
	}

	progress.Stage = StageCompleted
	progress.OutputKey = rendered.OutputKey
	progress.Unreplaced = rendered.Unreplaced
	return GenerateResult{
		SchemaName: extracted.Schema.Name,
		OutputKey:  rendered.OutputKey,
		Unreplaced: rendered.Unreplaced,
	}, nil
}

// rootMessage unwraps activity and application error layers to the message
// worth showing a caller.
func rootMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
