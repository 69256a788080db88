package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"template-docgen/internal/domain"
	appTemporal "template-docgen/internal/temporal"
)

// WorkflowClient is the subset of client.Client the job endpoints use.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type jobAccepted struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

type jobStatus struct {
	WorkflowID string                          `json:"workflow_id"`
	Status     string                          `json:"status"`
	Progress   *appTemporal.GenerationProgress `json:"progress,omitempty"`
}

// StartGenerationJob starts GenerateFromRecordWorkflow and returns at once;
// the finished document is fetched from GetJobDocument.
func (h *Handler) StartGenerationJob(w http.ResponseWriter, r *http.Request, templateID, recordID string) {
	if h.workflows == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "workflow engine not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	threshold, err := h.thresholdParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	workflowID := appTemporal.GenerateWorkflowID(h.cfg.WorkflowIDPrefix, uuid.NewString())
	run, err := h.workflows.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.cfg.TemporalTaskQueue,
	}, appTemporal.GenerateFromRecordWorkflowName, appTemporal.GenerateInput{
		TemplateID: templateID,
		RecordID:   recordID,
		Threshold:  threshold,
	})
	if err != nil {
		h.logger.Error("api.job.start_failed", "workflow_id", workflowID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to start workflow"})
		return
	}

	h.logger.Info("api.job.started", "workflow_id", run.GetID(), "template_id", templateID, "record_id", recordID)
	writeJSON(w, http.StatusAccepted, jobAccepted{WorkflowID: run.GetID(), RunID: run.GetRunID()})
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request, workflowID string) {
	if h.workflows == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "workflow engine not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	desc, err := h.workflows.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		h.writeWorkflowError(w, workflowID, err)
		return
	}

	out := jobStatus{
		WorkflowID: workflowID,
		Status:     desc.GetWorkflowExecutionInfo().GetStatus().String(),
	}
	if progress, err := h.queryProgress(ctx, workflowID); err == nil {
		out.Progress = &progress
	} else {
		h.logger.Warn("api.job.query_failed", "workflow_id", workflowID, "error", err)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetJobDocument(w http.ResponseWriter, r *http.Request, workflowID string) {
	if h.workflows == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "workflow engine not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	progress, err := h.queryProgress(ctx, workflowID)
	if err != nil {
		h.writeWorkflowError(w, workflowID, err)
		return
	}
	if progress.Stage != appTemporal.StageCompleted || progress.OutputKey == "" {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "document not ready",
			"stage": progress.Stage,
		})
		return
	}

	content, err := h.outputs.GetOutput(ctx, progress.OutputKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeDocx(w, generatedName, content)
}

func (h *Handler) queryProgress(ctx context.Context, workflowID string) (appTemporal.GenerationProgress, error) {
	var progress appTemporal.GenerationProgress
	value, err := h.workflows.QueryWorkflow(ctx, workflowID, "", appTemporal.ProgressQueryName)
	if err != nil {
		return progress, err
	}
	if err := value.Get(&progress); err != nil {
		return progress, err
	}
	return progress, nil
}

func (h *Handler) writeWorkflowError(w http.ResponseWriter, workflowID string, err error) {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job " + workflowID + ": " + domain.ErrNotFound.Error()})
		return
	}
	h.logger.Error("api.job.lookup_failed", "workflow_id", workflowID, "error", err)
	writeJSON(w, http.StatusBadGateway, errorResponse{Error: "failed to reach workflow engine"})
}
