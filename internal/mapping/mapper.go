// Package mapping pairs template fields with backend record fields by
// word-set similarity of their labels.
package mapping

import (
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"template-docgen/internal/domain"
)

const DefaultThreshold = 0.5

// Jaccard is |A∩B| / |A∪B| over the lower-cased whitespace-separated word
// sets of a and b, or 0 when both are empty.
func Jaccard(a, b string) float64 {
	setA := tokens(a)
	setB := tokens(b)
	union := lo.Union(setA, setB)
	if len(union) == 0 {
		return 0
	}
	return float64(len(lo.Intersect(setA, setB))) / float64(len(union))
}

func tokens(s string) []string {
	return lo.Uniq(strings.Fields(strings.ToLower(s)))
}

// FindBestMatch returns the candidate most similar to query. A candidate
// replaces the current best only when its score is strictly higher and reaches
// threshold, so ties keep the earliest candidate.
func FindBestMatch(query string, candidates []string, threshold float64) (string, bool) {
	best := 0.0
	match := ""
	found := false
	for _, c := range candidates {
		score := Jaccard(query, c)
		if score > best && score >= threshold {
			best = score
			match = c
			found = true
		}
	}
	return match, found
}

type Mapper struct {
	Threshold float64
	Logger    *slog.Logger
}

func New(threshold float64, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{Threshold: threshold, Logger: logger}
}

// MapFields assigns every template field the rendered value of its best
// matching backend field, or "" when nothing matches. Several template fields
// may share one backend field.
func (m *Mapper) MapFields(fields []domain.TemplateField, backendFieldNames []string, backendData domain.FieldSet) domain.MappedData {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := make(domain.MappedData, 0, len(fields))
	for _, f := range fields {
		label := f.DisplayLabel()
		match, ok := FindBestMatch(label, backendFieldNames, m.Threshold)
		if !ok {
			logger.Info("mapping.no_match", "field", f.ID, "label", label)
			out = append(out, domain.MappedValue{ID: f.ID, Value: ""})
			continue
		}
		value := ""
		if v, present := backendData.Get(match); present {
			value = v.String()
		}
		logger.Debug("mapping.matched", "field", f.ID, "label", label, "backend_field", match, "score", Jaccard(label, match))
		out = append(out, domain.MappedValue{ID: f.ID, Value: value})
	}
	return out
}

// MapFields runs a Mapper with the given threshold and the default logger.
func MapFields(fields []domain.TemplateField, backendFieldNames []string, backendData domain.FieldSet, threshold float64) domain.MappedData {
	return New(threshold, nil).MapFields(fields, backendFieldNames, backendData)
}
