// Package render substitutes mapped values into a template string and writes
// the result as a .docx document.
package render

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"template-docgen/internal/docx"
	"template-docgen/internal/domain"
)

var leftoverPlaceholder = regexp.MustCompile(`\{([^}]+)\}`)

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
)

// UnreplacedError is returned under PolicyFail when placeholders survive substitution.
type UnreplacedError struct {
	Placeholders []string
}

func (e *UnreplacedError) Error() string {
	return fmt.Sprintf("unreplaced placeholders: %s", strings.Join(e.Placeholders, ", "))
}

type Generator struct {
	Policy domain.PlaceholderPolicy
	Logger *slog.Logger
}

func New(policy domain.PlaceholderPolicy, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{Policy: policy, Logger: logger}
}

// Build substitutes mapped values into templateString and splits the result
// into styled paragraphs. Placeholders left over are stripped from the text
// and reported, in order of appearance.
func Build(templateString string, mapped domain.MappedData) ([]domain.Paragraph, []string) {
	text, unreplaced := substitute(templateString, mapped)
	text = leftoverPlaceholder.ReplaceAllString(text, "")
	return paragraphs(text), unreplaced
}

// Render writes the filled template to outputPath. The file appears
// atomically: it is written to a temporary sibling and renamed into place.
func (g *Generator) Render(templateString string, mapped domain.MappedData, outputPath string) (*domain.GeneratedDocument, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	text, unreplaced := substitute(templateString, mapped)
	if len(unreplaced) > 0 {
		if g.Policy == domain.PolicyFail {
			logger.Warn("render.unreplaced", "placeholders", unreplaced, "policy", string(domain.PolicyFail))
			return nil, domain.WithStage(domain.StageGeneration, &UnreplacedError{Placeholders: unreplaced})
		}
		logger.Warn("render.unreplaced", "placeholders", unreplaced, "policy", string(domain.PolicyStrip))
		text = leftoverPlaceholder.ReplaceAllString(text, "")
	}

	paras := paragraphs(text)
	if err := writeAtomic(outputPath, paras); err != nil {
		logger.Error("render.write_failed", "path", outputPath, "error", err)
		return nil, domain.WithStage(domain.StageGeneration, err)
	}

	logger.Info("render.ok", "path", outputPath, "paragraphs", len(paras), "unreplaced", len(unreplaced))
	return &domain.GeneratedDocument{
		Path:       outputPath,
		Paragraphs: paras,
		Unreplaced: unreplaced,
	}, nil
}

func substitute(templateString string, mapped domain.MappedData) (string, []string) {
	text := quoteReplacer.Replace(templateString)
	for _, mv := range mapped {
		text = strings.ReplaceAll(text, "{"+mv.ID+"}", mv.Value)
	}

	matches := leftoverPlaceholder.FindAllStringSubmatch(text, -1)
	unreplaced := make([]string, 0, len(matches))
	for _, m := range matches {
		unreplaced = append(unreplaced, m[1])
	}
	if len(unreplaced) == 0 {
		return text, nil
	}
	return text, unreplaced
}

func paragraphs(text string) []domain.Paragraph {
	out := make([]domain.Paragraph, 0)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, domain.Paragraph{
			Text: trimmed,
			Bold: trimmed == strings.ToUpper(trimmed),
		})
	}
	return out
}

func writeAtomic(outputPath string, paras []domain.Paragraph) (err error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", domain.ErrGenerationIO, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrGenerationIO, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = docx.Write(tmp, paras); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGenerationIO, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", domain.ErrGenerationIO, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", domain.ErrGenerationIO, err)
	}
	if err = os.Rename(tmpName, outputPath); err != nil {
		return fmt.Errorf("%w: rename: %v", domain.ErrGenerationIO, err)
	}
	return nil
}
