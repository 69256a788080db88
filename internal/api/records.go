package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"template-docgen/internal/domain"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	sampleValueRunes = 100
)

type fieldsResponse struct {
	RecordID    string         `json:"recordId"`
	TotalFields int            `json:"totalFields"`
	Fields      fieldSummaries `json:"fields"`
}

type namedSummary struct {
	name    string
	summary domain.FieldSummary
}

// fieldSummaries marshals as an object keeping record column order.
type fieldSummaries []namedSummary

func (fs fieldSummaries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.summary)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request, recordID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.records.GetRecord(ctx, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit, err := intParam(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 || limit > maxPageLimit {
		h.writeError(w, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidInput, maxPageLimit))
		return
	}
	skip, err := intParam(r, "skip", 0)
	if err != nil || skip < 0 {
		h.writeError(w, fmt.Errorf("%w: skip must be a non-negative integer", domain.ErrInvalidInput))
		return
	}

	page, err := h.records.ListRecords(ctx, skip, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetRecordFields describes each column of a record with its value kind and
// a sample of at most sampleValueRunes characters.
func (h *Handler) GetRecordFields(w http.ResponseWriter, r *http.Request, recordID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.records.GetRecord(ctx, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	summaries := make(fieldSummaries, 0, len(rec.Fields))
	for _, entry := range rec.Fields {
		summaries = append(summaries, namedSummary{name: entry.Name, summary: summarize(entry.Value)})
	}
	writeJSON(w, http.StatusOK, fieldsResponse{
		RecordID:    recordID,
		TotalFields: len(summaries),
		Fields:      summaries,
	})
}

func summarize(v domain.Value) domain.FieldSummary {
	out := domain.FieldSummary{Type: v.TypeName()}
	if v.IsNull() {
		return out
	}
	sample := v.String()
	if runes := []rune(sample); len(runes) > sampleValueRunes {
		sample = string(runes[:sampleValueRunes])
	}
	out.SampleValue = &sample
	return out
}

func (h *Handler) thresholdParam(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return h.cfg.MatchThreshold, nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || t < 0 || t > 1 {
		return 0, fmt.Errorf("%w: threshold must be a number within [0,1]", domain.ErrInvalidInput)
	}
	return t, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
