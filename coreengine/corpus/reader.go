package corpus

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrUnsupportedFormat is returned for document extensions the reader cannot parse.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// FileReader extracts plain text from txt, pdf and docx files.
type FileReader struct {
	// MaxBytes rejects larger files; zero disables the limit.
	MaxBytes int64
}

// NewFileReader creates a FileReader.
func NewFileReader(maxBytes int64) *FileReader {
	return &FileReader{MaxBytes: maxBytes}
}

// Read returns the text content of the document at path.
func (r *FileReader) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if r.MaxBytes > 0 && int64(len(data)) > r.MaxBytes {
		return "", fmt.Errorf("document %s exceeds %d bytes", filepath.Base(path), r.MaxBytes)
	}

	var text string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		text = string(data)
	case ".pdf":
		text, err = readPDF(data)
	case ".docx":
		text, err = readDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// =============================================================================
// PDF
// =============================================================================

var (
	pageFilePattern = regexp.MustCompile(`_(\d+)\.txt$`)
	showTextPattern = regexp.MustCompile(`(?s)\((.*?[^\\])\)\s*Tj|\[(.*?)\]\s*TJ`)
	arrayStrPattern = regexp.MustCompile(`(?s)\((.*?[^\\])\)`)
)

// readPDF dumps page content streams with pdfcpu and collects the shown strings.
func readPDF(data []byte) (string, error) {
	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	if pages == 0 {
		return "", nil
	}

	dir, err := os.MkdirTemp("", "assistant-pdf-*")
	if err != nil {
		return "", fmt.Errorf("pdf temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractContent(bytes.NewReader(data), dir, "doc", nil, nil); err != nil {
		return "", fmt.Errorf("extract pdf content: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return "", err
	}
	sort.Slice(files, func(i, j int) bool { return pageNumber(files[i]) < pageNumber(files[j]) })

	var b strings.Builder
	for _, f := range files {
		stream, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		if page := textFromContentStream(string(stream)); page != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(page)
		}
	}
	return b.String(), nil
}

func pageNumber(path string) int {
	m := pageFilePattern.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func textFromContentStream(stream string) string {
	var parts []string
	for _, m := range showTextPattern.FindAllStringSubmatch(stream, -1) {
		if m[1] != "" {
			parts = append(parts, unescapePDFString(m[1]))
			continue
		}
		var line strings.Builder
		for _, s := range arrayStrPattern.FindAllStringSubmatch(m[2], -1) {
			line.WriteString(unescapePDFString(s[1]))
		}
		parts = append(parts, line.String())
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func unescapePDFString(s string) string {
	r := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\r`, "", `\t`, "\t")
	return r.Replace(s)
}

// =============================================================================
// DOCX
// =============================================================================

// readDOCX concatenates the w:t runs of word/document.xml, one line per paragraph.
func readDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open docx body: %w", err)
		}
		defer rc.Close()
		return paragraphsFromWordXML(rc)
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}

func paragraphsFromWordXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == "t"
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
