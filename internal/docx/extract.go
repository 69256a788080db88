// Package docx reads and writes the WordprocessingML subset the pipeline
// needs: body paragraphs and table rows in, plain styled paragraphs out.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"template-docgen/internal/domain"
)

const (
	documentPart   = "word/document.xml"
	maxDocumentXML = 64 << 20
	cellSeparator  = " | "
)

// Extract returns the readable blocks of a .docx body in document order.
// A paragraph is one block; a table row is one block with its cells joined by
// " | ". Blocks are trimmed and empty ones dropped.
func Extract(b []byte) ([]string, error) {
	dec, closeFn, err := openBody(b)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	blocks := make([]string, 0)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				text, err := elementText(dec)
				if err != nil {
					return nil, malformed(err)
				}
				blocks = appendBlock(blocks, text)
			case "tbl":
				rows, err := tableRows(dec)
				if err != nil {
					return nil, malformed(err)
				}
				for _, row := range rows {
					blocks = appendBlock(blocks, row)
				}
			default:
				if err := dec.Skip(); err != nil {
					return nil, malformed(err)
				}
			}
		case xml.EndElement:
			// end of w:body
			if len(blocks) == 0 {
				return nil, fmt.Errorf("%w: no readable body", domain.ErrExtraction)
			}
			return blocks, nil
		}
	}
}

// ExtractText joins the blocks of Extract with newlines.
func ExtractText(b []byte) (string, error) {
	blocks, err := Extract(b)
	if err != nil {
		return "", err
	}
	return strings.Join(blocks, "\n"), nil
}

// Paragraphs returns the direct body paragraphs with their bold flag. A
// paragraph counts as bold when every run carrying text is bold.
func Paragraphs(b []byte) ([]domain.Paragraph, error) {
	dec, closeFn, err := openBody(b)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	out := make([]domain.Paragraph, 0)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "p" {
				if err := dec.Skip(); err != nil {
					return nil, malformed(err)
				}
				continue
			}
			p, err := styledParagraph(dec)
			if err != nil {
				return nil, malformed(err)
			}
			out = append(out, p)
		case xml.EndElement:
			return out, nil
		}
	}
}

// openBody positions a decoder just inside w:body.
func openBody(b []byte) (*xml.Decoder, func(), error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: not a docx package: %v", domain.ErrExtraction, err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return nil, nil, fmt.Errorf("%w: missing %s", domain.ErrExtraction, documentPart)
	}
	rc, err := part.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", domain.ErrExtraction, documentPart, err)
	}

	dec := xml.NewDecoder(io.LimitReader(rc, maxDocumentXML))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			rc.Close()
			return nil, nil, fmt.Errorf("%w: document has no body", domain.ErrExtraction)
		}
		if err != nil {
			rc.Close()
			return nil, nil, malformed(err)
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "body" {
			return dec, func() { rc.Close() }, nil
		}
	}
}

func malformed(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: malformed document xml: %v", domain.ErrExtraction, err)
}

func appendBlock(blocks []string, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return blocks
	}
	return append(blocks, text)
}

// elementText concatenates the w:t descendants of the element whose start tag
// was just read. Nested paragraphs are separated by a space.
func elementText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	depth, inText := 1, 0
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "t":
				inText++
			case "p":
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
			}
		case xml.EndElement:
			depth--
			if t.Name.Local == "t" && inText > 0 {
				inText--
			}
		case xml.CharData:
			if inText > 0 {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func tableRows(dec *xml.Decoder) ([]string, error) {
	rows := make([]string, 0)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "tr" {
				if err := dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			cells, err := rowCells(dec)
			if err != nil {
				return nil, err
			}
			rows = append(rows, joinCells(cells))
		case xml.EndElement:
			return rows, nil
		}
	}
}

func rowCells(dec *xml.Decoder) ([]string, error) {
	cells := make([]string, 0)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "tc" {
				if err := dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			text, err := elementText(dec)
			if err != nil {
				return nil, err
			}
			cells = append(cells, strings.TrimSpace(text))
		case xml.EndElement:
			return cells, nil
		}
	}
}

func joinCells(cells []string) string {
	for _, c := range cells {
		if c != "" {
			return strings.Join(cells, cellSeparator)
		}
	}
	return ""
}

func styledParagraph(dec *xml.Decoder) (domain.Paragraph, error) {
	var (
		b                       strings.Builder
		depth, inText           = 1, 0
		inRun, runBold, runText bool
		textRuns, boldRuns      int
	)
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return domain.Paragraph{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "r":
				inRun, runBold, runText = true, false, false
			case "b":
				if inRun && boolAttr(t.Attr) {
					runBold = true
				}
			case "t":
				inText++
			}
		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "t":
				if inText > 0 {
					inText--
				}
			case "r":
				if runText {
					textRuns++
					if runBold {
						boldRuns++
					}
				}
				inRun = false
			}
		case xml.CharData:
			if inText > 0 && len(t) > 0 {
				b.Write(t)
				runText = true
			}
		}
	}
	return domain.Paragraph{
		Text: b.String(),
		Bold: textRuns > 0 && textRuns == boldRuns,
	}, nil
}

// boolAttr reads an OOXML on/off property; absence of w:val means on.
func boolAttr(attrs []xml.Attr) bool {
	for _, a := range attrs {
		if a.Name.Local == "val" {
			switch strings.ToLower(a.Value) {
			case "0", "false", "off":
				return false
			}
		}
	}
	return true
}
