package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	braintrust "github.com/braintrustdata/braintrust-sdk-go"
	"github.com/braintrustdata/braintrust-sdk-go/eval"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	jobCompleted = "completed"
	jobFailed    = "failed"
)

// evalInput names a template either by file or by inline paragraphs; with a
// record id the case also runs a generation job against that record.
type evalInput struct {
	Name          string   `json:"name"`
	TemplatePath  string   `json:"template_path,omitempty"`
	TemplateLines []string `json:"template_lines,omitempty"`
	RecordID      string   `json:"record_id,omitempty"`
}

type evalField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type evalSchema struct {
	Name           string      `json:"name"`
	Fields         []evalField `json:"fields"`
	TemplateString string      `json:"templateString"`
}

type evalOutput struct {
	TemplateID string      `json:"template_id,omitempty"`
	Schema     *evalSchema `json:"schema,omitempty"`
	Error      string      `json:"error,omitempty"`
	JobID      string      `json:"job_id,omitempty"`
	JobStatus  string      `json:"job_status,omitempty"`
	Unreplaced []string    `json:"unreplaced,omitempty"`
}

// evalExpected is what a case asserts about the extracted schema.
type evalExpected struct {
	SchemaName string            `json:"schema_name,omitempty"`
	FieldIDs   []string          `json:"field_ids,omitempty"`
	FieldTypes map[string]string `json:"field_types,omitempty"`
	JobStatus  string            `json:"job_status,omitempty"`
}

type rawCase struct {
	Input    evalInput    `json:"input"`
	Expected evalExpected `json:"expected"`
}

type config struct {
	APIURL         string
	CasesPath      string
	Project        string
	Experiment     string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	Parallelism    int
}

type evalRunner struct {
	cfg    config
	client *http.Client
}

type uploadResponse struct {
	TemplateID string      `json:"templateId"`
	Schema     *evalSchema `json:"schema"`
}

type jobAccepted struct {
	WorkflowID string `json:"workflow_id"`
}

type jobStatus struct {
	Status   string `json:"status"`
	Progress *struct {
		Stage      string   `json:"stage"`
		Unreplaced []string `json:"unreplaced"`
		Error      string   `json:"error"`
	} `json:"progress"`
}

func main() {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		fail(err)
	}

	if strings.TrimSpace(os.Getenv("BRAINTRUST_API_KEY")) == "" {
		fail(errors.New("BRAINTRUST_API_KEY is required"))
	}

	cases, err := loadCases(cfg.CasesPath)
	if err != nil {
		fail(err)
	}

	runner := &evalRunner{
		cfg:    cfg,
		client: &http.Client{},
	}

	if err := runner.healthCheck(ctx); err != nil {
		fail(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	bt, err := braintrust.New(
		tp,
		braintrust.WithProject(cfg.Project),
		braintrust.WithBlockingLogin(true),
	)
	if err != nil {
		fail(fmt.Errorf("failed to initialize Braintrust: %w", err))
	}

	evaluator := braintrust.NewEvaluator[evalInput, evalExpectedOutput](bt)

	result, err := evaluator.Run(ctx, eval.Opts[evalInput, evalExpectedOutput]{
		Experiment: cfg.Experiment,
		Dataset:    eval.NewDataset(cases),
		Task:       eval.T(runner.runCase),
		Scorers: []eval.Scorer[evalInput, evalExpectedOutput]{
			eval.NewScorer("schema_available", scoreSchemaAvailable),
			eval.NewScorer("schema_name", scoreSchemaName),
			eval.NewScorer("field_recall", scoreFieldRecall),
			eval.NewScorer("field_types", scoreFieldTypes),
			eval.NewScorer("placeholder_coverage", scorePlaceholderCoverage),
			eval.NewScorer("job_status", scoreJobStatus),
			eval.NewScorer("fully_replaced", scoreFullyReplaced),
		},
		Tags: []string{"template-intake", "schema-extraction", "docgen-api"},
		Metadata: map[string]any{
			"service":          "template-docgen",
			"api_url":          cfg.APIURL,
			"poll_timeout_sec": int(cfg.PollTimeout.Seconds()),
		},
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		fail(fmt.Errorf("eval run failed: %w", err))
	}

	if runErr := result.Error(); runErr != nil {
		fail(fmt.Errorf("eval completed with errors: %w", runErr))
	}

	if link, err := result.Permalink(); err == nil && link != "" {
		fmt.Println("Braintrust report:", link)
	}

	fmt.Println(result.String())
}

// evalExpectedOutput is the output type the evaluator is parameterised on.
// Expected values ride along in the same struct so scorers can compare them.
type evalExpectedOutput struct {
	evalOutput
	Expect evalExpected `json:"expect,omitempty"`
}

func loadConfig() (config, error) {
	cfg := config{
		APIURL:         getenv("EVAL_API_URL", "http://localhost:8080"),
		CasesPath:      getenv("EVAL_CASES_PATH", "cases.json"),
		Project:        getenv("BRAINTRUST_PROJECT", "template-docgen"),
		Experiment:     getenv("EVAL_EXPERIMENT", "template-schema-extraction-eval"),
		PollInterval:   time.Duration(getenvInt("EVAL_POLL_INTERVAL_SEC", 2)) * time.Second,
		PollTimeout:    time.Duration(getenvInt("EVAL_POLL_TIMEOUT_SEC", 180)) * time.Second,
		RequestTimeout: time.Duration(getenvInt("EVAL_REQUEST_TIMEOUT_SEC", 90)) * time.Second,
		Parallelism:    getenvInt("EVAL_PARALLELISM", 1),
	}

	if cfg.PollInterval <= 0 {
		return config{}, errors.New("EVAL_POLL_INTERVAL_SEC must be > 0")
	}
	if cfg.PollTimeout <= 0 {
		return config{}, errors.New("EVAL_POLL_TIMEOUT_SEC must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return config{}, errors.New("EVAL_REQUEST_TIMEOUT_SEC must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	return cfg, nil
}

func loadCases(path string) ([]eval.Case[evalInput, evalExpectedOutput], error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases file %s: %w", resolved, err)
	}

	var raw []rawCase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cases file %s: %w", resolved, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cases file is empty: %s", resolved)
	}

	cases := make([]eval.Case[evalInput, evalExpectedOutput], 0, len(raw))
	for i, row := range raw {
		if row.Input.TemplatePath == "" && len(row.Input.TemplateLines) == 0 {
			return nil, fmt.Errorf("case %d (%s): template_path or template_lines is required", i, row.Input.Name)
		}
		cases = append(cases, eval.Case[evalInput, evalExpectedOutput]{
			Input:    row.Input,
			Expected: evalExpectedOutput{Expect: row.Expected},
			Metadata: map[string]any{"name": row.Input.Name, "template_path": row.Input.TemplatePath, "record_id": row.Input.RecordID},
		})
	}
	return cases, nil
}

func (r *evalRunner) runCase(ctx context.Context, input evalInput) (evalExpectedOutput, error) {
	content, filename, err := templateContent(input)
	if err != nil {
		return evalExpectedOutput{}, err
	}

	out, err := r.uploadTemplate(ctx, filename, content)
	if err != nil {
		return evalExpectedOutput{}, err
	}
	if out.Schema == nil || input.RecordID == "" {
		return evalExpectedOutput{evalOutput: out}, nil
	}

	jobID, err := r.startJob(ctx, out.TemplateID, input.RecordID)
	if err != nil {
		return evalExpectedOutput{}, err
	}
	out.JobID = jobID

	deadline := time.Now().Add(r.cfg.PollTimeout)
	for {
		status, err := r.getJob(ctx, jobID)
		if err != nil {
			return evalExpectedOutput{}, err
		}

		s := strings.ToLower(status.Status)
		if s != "running" && s != "" {
			out.JobStatus = s
			if status.Progress != nil {
				out.Unreplaced = status.Progress.Unreplaced
				if status.Progress.Error != "" {
					out.Error = status.Progress.Error
				}
			}
			return evalExpectedOutput{evalOutput: out}, nil
		}

		if time.Now().After(deadline) {
			return evalExpectedOutput{}, fmt.Errorf("timed out waiting for job %s", jobID)
		}

		select {
		case <-ctx.Done():
			return evalExpectedOutput{}, ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *evalRunner) healthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := r.doJSON(ctx, http.MethodGet, "/healthz", nil, &resp, ""); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if strings.ToLower(resp.Status) != "ok" {
		return fmt.Errorf("health check returned non-ok status: %s", resp.Status)
	}
	return nil
}

// uploadTemplate posts the template and returns its id and schema. A 500 from
// the extraction stage is an eval outcome rather than a harness failure.
func (r *evalRunner) uploadTemplate(ctx context.Context, filename string, content []byte) (evalOutput, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return evalOutput{}, fmt.Errorf("failed to create multipart form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return evalOutput{}, fmt.Errorf("failed to write multipart file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return evalOutput{}, fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, strings.TrimRight(r.cfg.APIURL, "/")+"/v1/templates", &body)
	if err != nil {
		return evalOutput{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return evalOutput{}, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return evalOutput{}, fmt.Errorf("upload response read failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusCreated:
		var out uploadResponse
		if err := json.Unmarshal(payload, &out); err != nil {
			return evalOutput{}, fmt.Errorf("upload response decode failed: %w", err)
		}
		return evalOutput{TemplateID: out.TemplateID, Schema: out.Schema}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusUnprocessableEntity:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(payload, &e)
		return evalOutput{Error: e.Error}, nil
	default:
		return evalOutput{}, fmt.Errorf("upload failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
}

func (r *evalRunner) startJob(ctx context.Context, templateID, recordID string) (string, error) {
	var out jobAccepted
	path := "/v1/templates/" + templateID + "/records/" + recordID + "/jobs"
	if err := r.doJSON(ctx, http.MethodPost, path, nil, &out, ""); err != nil {
		return "", err
	}
	if out.WorkflowID == "" {
		return "", fmt.Errorf("job response missing workflow_id for template %s", templateID)
	}
	return out.WorkflowID, nil
}

func (r *evalRunner) getJob(ctx context.Context, workflowID string) (jobStatus, error) {
	var out jobStatus
	if err := r.doJSON(ctx, http.MethodGet, "/v1/jobs/"+workflowID, nil, &out, ""); err != nil {
		return jobStatus{}, err
	}
	return out, nil
}

func (r *evalRunner) doJSON(ctx context.Context, method, path string, in any, out any, contentType string) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(r.cfg.APIURL, "/")+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode failed: %w (payload=%s)", err, string(payload))
		}
	}
	return nil
}

func scoreSchemaAvailable(_ context.Context, tr eval.TaskResult[evalInput, evalExpectedOutput]) (eval.Scores, error) {
	if tr.Output.Schema != nil && len(tr.Output.Schema.Fields) > 0 {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

func scoreSchemaName(_ context.Context, tr eval.TaskResult[evalInput, evalExpectedOutput]) (eval.Scores, error) {
	expected := normalizeString(tr.Expected.Expect.SchemaName)
	if tr.Output.Schema == nil {
		return eval.S(0), nil
	}
	actual := normalizeString(tr.Output.Schema.Name)
	if expected == "" {
		return boolScore(actual != ""), nil
	}
	return boolScore(actual == expected), nil
}

// scoreFieldRecall is the share of expected field ids the schema contains.
func scoreFieldRecall(_ context.Context, tr eval.TaskResult[evalInput, evalExpectedOutput]) (eval.Scores, error) {
	expected := tr.Expected.Expect.FieldIDs
	if len(expected) == 0 || tr.Output.Schema == nil {
		return eval.S(0), nil
	}

	ids := fieldIndex(tr.Output.Schema)
	matched := 0
	for _, id := range expected {
		if _, ok := ids[id]; ok {
			matched++
		}
	}
	return eval.S(float64(matched) / float64(len(expected))), nil
}

func scoreFieldTypes(_ context.Context, tr eval.TaskResult[evalInput, evalExpectedOutput]) (eval.Scores, error) {
	expected := tr.Expected.Expect.FieldTypes
	if len(expected) == 0 {
		return boolScore(tr.Output.Schema != nil), nil
	}
	if tr.Output.Schema == nil {
		return eval.S(0), nil
	}

	ids := fieldIndex(tr.Output.Schema)
	matched := 0
	for id, want := range expected {
		if f, ok := ids[id]; ok && normalizeType(f.Type) == normalizeType(want) {
			matched++
		}
	}
	return eval.S(float64(matched) / float64(len(expected))), nil
}

// scorePlaceholderCoverage is the share of schema fields whose {id}
// placeholder appears in the template string.
func scorePlaceholderCoverage(_ context.Context, tr eval.TaskResult[evalInput, evalExpectedOutput]) (eval.Scores, error) {
	schema := tr.Output.Schema
	if schema == nil || len(schema.Fields) == 0 {
		return eval.S(0), nil
	}

	covered := 0
	for _, f := range schema.Fields {
		if strings.Contains(schema.TemplateString, "{"+f.ID+"}") {
			covered++
		}
	}
	return eval.S(float64(covered) / float64(len(schema.Fields))), nil
}

func scoreJobStatus(_ context.Context, tr eval.TaskResult[evalInput, evalExpectedOutput]) (eval.Scores, error) {
	if tr.Input.RecordID == "" {
		return eval.S(1), nil
	}
	expected := strings.ToLower(strings.TrimSpace(tr.Expected.Expect.JobStatus))
	if expected == "" {
		expected = jobCompleted
	}
	return boolScore(tr.Output.JobStatus == expected), nil
}

func scoreFullyReplaced(_ context.Context, tr eval.TaskResult[evalInput, evalExpectedOutput]) (eval.Scores, error) {
	if tr.Input.RecordID == "" {
		return eval.S(1), nil
	}
	if tr.Output.JobStatus == jobFailed {
		return eval.S(0), nil
	}
	return boolScore(len(tr.Output.Unreplaced) == 0), nil
}

func fieldIndex(schema *evalSchema) map[string]evalField {
	out := make(map[string]evalField, len(schema.Fields))
	for _, f := range schema.Fields {
		out[f.ID] = f
	}
	return out
}

func normalizeType(t string) string {
	t = normalizeString(t)
	if t == "array-of-objects" {
		return "array of objects"
	}
	return t
}

func boolScore(ok bool) eval.Scores {
	if ok {
		return eval.S(1)
	}
	return eval.S(0)
}

func normalizeString(v any) string {
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func templateContent(input evalInput) ([]byte, string, error) {
	if input.TemplatePath != "" {
		path, err := resolvePath(input.TemplatePath)
		if err != nil {
			return nil, "", err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read template %s: %w", path, err)
		}
		return b, filepath.Base(path), nil
	}

	b, err := buildDocx(input.TemplateLines)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build template %s: %w", input.Name, err)
	}
	name := strings.ReplaceAll(strings.TrimSpace(input.Name), " ", "_")
	if name == "" {
		name = "template"
	}
	return b, name + ".docx", nil
}

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
)

// buildDocx packs one paragraph per line into a minimal word document so
// cases can carry their template inline.
func buildDocx(lines []string) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, line := range lines {
		doc.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		if err := xml.EscapeText(&doc, []byte(line)); err != nil {
			return nil, err
		}
		doc.WriteString(`</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name string
		body []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(relsXML)},
		{"word/document.xml", doc.Bytes()},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(p.body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("path not found: %s", path)
	}

	candidates := []string{
		path,
		filepath.Join("..", "..", path),
	}

	for _, c := range candidates {
		absPath, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath, nil
		}
	}

	return "", fmt.Errorf("path not found: %s", path)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return fallback
	}
	return out
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
