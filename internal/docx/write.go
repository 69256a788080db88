package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"template-docgen/internal/domain"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

const (
	documentOpen  = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" + `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	documentClose = `<w:sectPr/></w:body></w:document>`
)

// Write emits a minimal .docx package holding one paragraph per entry.
func Write(w io.Writer, paragraphs []domain.Paragraph) error {
	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(packageRelsXML)},
		{"word/_rels/document.xml.rels", []byte(documentRelsXML)},
		{documentPart, documentXML(paragraphs)},
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := fw.Write(p.body); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close docx package: %w", err)
	}
	return nil
}

// Bytes is Write into memory.
func Bytes(paragraphs []domain.Paragraph) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, paragraphs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func documentXML(paragraphs []domain.Paragraph) []byte {
	var buf bytes.Buffer
	buf.WriteString(documentOpen)
	for _, p := range paragraphs {
		buf.WriteString("<w:p><w:r>")
		if p.Bold {
			buf.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		buf.WriteString(`<w:t xml:space="preserve">`)
		// EscapeText only fails on writer errors; bytes.Buffer never returns one.
		_ = xml.EscapeText(&buf, []byte(p.Text))
		buf.WriteString("</w:t></w:r></w:p>")
	}
	buf.WriteString(documentClose)
	return buf.Bytes()
}
