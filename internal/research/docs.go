// Package research gathers supplementary context for a decision session:
// text extracted from user documents and summaries of web search results.
package research

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Kind is a supported document format.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindText    Kind = "text"
	KindUnknown Kind = ""
)

const maxDocumentSize = 20 * 1024 * 1024

// KindFromFilename maps a file extension to a document kind.
func KindFromFilename(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".txt", ".md", ".markdown", ".text", ".csv":
		return KindText
	}
	return KindUnknown
}

// Document is a loaded user document.
type Document struct {
	Name string
	Kind Kind
	Text string
}

// ReadDocument loads path and extracts its text. Unreadable files and
// unsupported kinds are errors; a file whose text cannot be extracted
// yields a Document with empty Text.
func ReadDocument(path string) (Document, error) {
	kind := KindFromFilename(path)
	if kind == KindUnknown {
		return Document{}, fmt.Errorf("unsupported document type %q (want .pdf, .docx, .txt or .md)", filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, err
	}
	if info.Size() > maxDocumentSize {
		return Document{}, fmt.Errorf("document too large: %d bytes (max %d)", info.Size(), maxDocumentSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Name: filepath.Base(path),
		Kind: kind,
		Text: ExtractText(data, kind),
	}, nil
}

// ExtractText returns the plain text of data, or "" when nothing can be
// extracted. It never panics.
func ExtractText(data []byte, kind Kind) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	var err error
	switch kind {
	case KindPDF:
		text, err = pdfText(data)
	case KindDOCX:
		text, err = docxText(data)
	case KindText:
		if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
			return ""
		}
		text = string(data)
	}
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// docxText reads word/document.xml and keeps text runs, tabs and paragraph breaks.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open DOCX: %w", err)
	}
	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return "", err
			}
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("DOCX has no word/document.xml")
	}
	defer body.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(io.LimitReader(body, maxDocumentSize))
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse DOCX: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// Clip cuts text to at most n runes.
func Clip(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n]) + "\n[truncated]"
}
