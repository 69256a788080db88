package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"template-docgen/internal/config"
	"template-docgen/internal/domain"
	"template-docgen/internal/mapping"
	"template-docgen/internal/render"
)

const (
	docxMIME         = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	generatedName    = "Generated_Document.docx"
	unreplacedHeader = "X-Unreplaced-Placeholders"
)

type TemplateStore interface {
	Put(ctx context.Context, content []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

type OutputStore interface {
	GetOutput(ctx context.Context, key string) ([]byte, error)
}

type RecordStore interface {
	Ping(ctx context.Context) error
	GetRecord(ctx context.Context, businessID string) (domain.Record, error)
	ListRecords(ctx context.Context, skip, limit int) (domain.RecordPage, error)
	GetIntake(ctx context.Context, templateID string) (domain.TemplateIntake, error)
}

type SchemaExtractor interface {
	ExtractSchema(ctx context.Context, documentBytes []byte) (*domain.TemplateSchema, error)
}

// Dependencies are the collaborators a Handler serves requests with.
// Workflows may be nil when no Temporal frontend is configured.
type Dependencies struct {
	Templates TemplateStore
	Outputs   OutputStore
	Records   RecordStore
	Extractor SchemaExtractor
	Generator *render.Generator
	Workflows WorkflowClient
	Logger    *slog.Logger
}

type Handler struct {
	cfg       config.Config
	templates TemplateStore
	outputs   OutputStore
	records   RecordStore
	extractor SchemaExtractor
	generator *render.Generator
	workflows WorkflowClient
	logger    *slog.Logger
}

type uploadResponse struct {
	TemplateID string                 `json:"templateId"`
	Schema     *domain.TemplateSchema `json:"schema"`
}

type generateRequest struct {
	TemplateID string          `json:"templateId"`
	MappedData json.RawMessage `json:"mappedData"`
}

type errorResponse struct {
	Error string       `json:"error"`
	Stage domain.Stage `json:"stage,omitempty"`
}

func NewHandler(cfg config.Config, deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	generator := deps.Generator
	if generator == nil {
		generator = render.New(cfg.PlaceholderPolicy, logger)
	}
	return &Handler{
		cfg:       cfg,
		templates: deps.Templates,
		outputs:   deps.Outputs,
		records:   deps.Records,
		extractor: deps.Extractor,
		generator: generator,
		workflows: deps.Workflows,
		logger:    logger,
	}
}

func (h *Handler) Banner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "template-docgen",
		"endpoints": []string{
			"POST /v1/templates",
			"POST /v1/documents",
			"POST /v1/templates/{templateId}/records/{recordId}/document",
			"POST /v1/templates/{templateId}/records/{recordId}/jobs",
			"GET /v1/templates/{templateId}/intake",
			"GET /v1/records",
			"GET /v1/records/{recordId}",
			"GET /v1/records/{recordId}/fields",
			"GET /v1/jobs/{workflowId}",
			"GET /v1/jobs/{workflowId}/document",
		},
	})
}

func (h *Handler) UploadTemplate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pipelineTimeout())
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.AllowedUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file form field is required"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".docx") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "only .docx files allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read file"})
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file exceeds size limit"})
		return
	}
	if !isDocxUpload(body) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "only .docx files allowed"})
		return
	}

	templateID, err := h.templates.Put(ctx, body)
	if err != nil {
		h.logger.Error("api.template.store_failed", "filename", header.Filename, "error", err)
		h.writeError(w, domain.WithStage(domain.StageExtraction, fmt.Errorf("failed to store template: %w", err)))
		return
	}

	schema, err := h.schemaFromBytes(ctx, body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("api.template.uploaded", "template_id", templateID, "filename", header.Filename, "fields", len(schema.Fields))
	writeJSON(w, http.StatusCreated, uploadResponse{TemplateID: templateID, Schema: schema})
}

// GenerateDocument fills a stored template with caller-supplied values. It
// accepts a form (templateId, mappedData as a JSON string) or a JSON body.
func (h *Handler) GenerateDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pipelineTimeout())
	defer cancel()

	req, err := decodeGenerateRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	mapped := domain.MappedData{}
	if len(req.MappedData) > 0 {
		if err := json.Unmarshal(req.MappedData, &mapped); err != nil {
			h.writeError(w, fmt.Errorf("%w: mappedData: %v", domain.ErrInvalidInput, err))
			return
		}
	}

	schema, err := h.schemaForTemplate(ctx, req.TemplateID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.renderDocument(w, schema, mapped)
}

// GenerateFromRecord maps a stored record onto the template's fields and
// returns the filled document. The threshold query parameter overrides
// MATCH_THRESHOLD.
func (h *Handler) GenerateFromRecord(w http.ResponseWriter, r *http.Request, templateID, recordID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pipelineTimeout())
	defer cancel()

	threshold, err := h.thresholdParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	record, err := h.records.GetRecord(ctx, recordID)
	if err != nil {
		h.writeError(w, domain.WithStage(domain.StageMapping, err))
		return
	}

	schema, err := h.schemaForTemplate(ctx, templateID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	mapped := mapping.New(threshold, h.logger).MapFields(schema.Fields, record.Fields.Names(), record.Fields)
	h.renderDocument(w, schema, mapped)
}

func (h *Handler) GetIntake(w http.ResponseWriter, r *http.Request, templateID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	intake, err := h.records.GetIntake(ctx, templateID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intake)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.records.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) schemaForTemplate(ctx context.Context, templateID string) (*domain.TemplateSchema, error) {
	if templateID == "" {
		return nil, fmt.Errorf("%w: templateId is required", domain.ErrInvalidInput)
	}
	content, err := h.templates.Get(ctx, templateID)
	if err != nil {
		return nil, domain.WithStage(domain.StageExtraction, err)
	}
	return h.schemaFromBytes(ctx, content)
}

func (h *Handler) schemaFromBytes(ctx context.Context, content []byte) (*domain.TemplateSchema, error) {
	schema, err := h.extractor.ExtractSchema(ctx, content)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, domain.WithStage(domain.StageExtraction, domain.ErrSchemaUnavailable)
	}
	return schema, nil
}

func (h *Handler) renderDocument(w http.ResponseWriter, schema *domain.TemplateSchema, mapped domain.MappedData) {
	outputPath := filepath.Join(h.cfg.OutputDir, fmt.Sprintf("Generated_Document_%s.docx", uuid.NewString()))
	defer os.Remove(outputPath)

	doc, err := h.generator.Render(schema.TemplateString, mapped, outputPath)
	if err != nil {
		h.writeError(w, err)
		return
	}
	content, err := os.ReadFile(doc.Path)
	if err != nil {
		h.writeError(w, domain.WithStage(domain.StageGeneration, fmt.Errorf("%w: %v", domain.ErrGenerationIO, err)))
		return
	}
	if len(doc.Unreplaced) > 0 {
		w.Header().Set(unreplacedHeader, strings.Join(doc.Unreplaced, ","))
	}
	writeDocx(w, generatedName, content)
}

func (h *Handler) pipelineTimeout() time.Duration {
	attempts := h.cfg.LLMMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return h.cfg.LLMTimeout()*time.Duration(attempts) + 15*time.Second
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("api.request_failed", "status", status, "stage", string(domain.StageOf(err)), "error", err)
	}
	writeJSON(w, status, errorResponse{Error: errorMessage(err), Stage: domain.StageOf(err)})
}

// errorMessage drops the stage prefix; the stage travels in its own field.
func errorMessage(err error) string {
	var se *domain.StageError
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	return err.Error()
}

func statusFor(err error) int {
	var unreplaced *render.UnreplacedError
	var svc *domain.ServiceError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &unreplaced):
		return http.StatusUnprocessableEntity
	case errors.As(err, &svc):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeGenerateRequest reads templateId and mappedData from a JSON body or a
// form. mappedData may be an object or a string holding one.
func decodeGenerateRequest(r *http.Request) (generateRequest, error) {
	var req generateRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("%w: invalid json", domain.ErrInvalidInput)
		}
	} else {
		req.TemplateID = r.FormValue("templateId")
		if raw := r.FormValue("mappedData"); raw != "" {
			req.MappedData = json.RawMessage(raw)
		}
	}

	if len(req.MappedData) > 0 && req.MappedData[0] == '"' {
		var inner string
		if err := json.Unmarshal(req.MappedData, &inner); err != nil {
			return req, fmt.Errorf("%w: mappedData: %v", domain.ErrInvalidInput, err)
		}
		req.MappedData = json.RawMessage(inner)
	}
	if req.TemplateID == "" {
		return req, fmt.Errorf("%w: templateId is required", domain.ErrInvalidInput)
	}
	return req, nil
}

// isDocxUpload accepts the WordprocessingML type or any zip container; the
// extractor rejects zips that are not documents.
func isDocxUpload(body []byte) bool {
	for m := mimetype.Detect(body); m != nil; m = m.Parent() {
		if m.Is(docxMIME) || m.Is("application/zip") {
			return true
		}
	}
	return false
}

func writeDocx(w http.ResponseWriter, filename string, content []byte) {
	w.Header().Set("Content-Type", docxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
