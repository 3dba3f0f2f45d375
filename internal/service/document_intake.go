package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/medreport-analyzer/internal/domain"
)

// NoTextPlaceholder replaces empty extraction output. It is analyzed like
// any other text.
const NoTextPlaceholder = "(No text could be extracted from the document.)"

// DefaultMaxUploadBytes is the upload ceiling when none is configured.
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// DefaultMaxTextBytes bounds the text an extractor may produce from one
// document. Compressed formats expand well beyond their upload size.
const DefaultMaxTextBytes = 4 * DefaultMaxUploadBytes

// ErrTextTooLarge is returned by extractors when a document expands past
// the text limit.
var ErrTextTooLarge = errors.New("extracted text exceeds the size limit")

var acceptedMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

// ValidateUpload checks the declared type and size of an uploaded document.
// A file is accepted when either its MIME type or its extension is known.
func ValidateUpload(name, mimeType string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	if !acceptedMIMETypes[mimeType] && !acceptedExtensions[extensionOf(name)] {
		return domain.NewAnalysisError(domain.ErrUnsupportedFormat,
			"Please upload a PDF, Word document (.docx) or plain text file.",
			fmt.Sprintf("name=%q type=%q", name, mimeType), "")
	}

	if size > maxBytes {
		return domain.NewAnalysisError(domain.ErrFileTooLarge,
			fmt.Sprintf("File must be under %d MB.", maxBytes/(1024*1024)),
			fmt.Sprintf("size=%d", size), "")
	}
	return nil
}

func extensionOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// DocumentIntake turns uploaded documents into report text. Extractors are
// keyed by file extension. An OCR engine for images can be added with
// Register.
type DocumentIntake struct {
	extractors   map[string]domain.TextExtractor
	logger       *logrus.Logger
	maxTextBytes int64
}

// IntakeOption configures a DocumentIntake
type IntakeOption func(*DocumentIntake)

// WithMaxTextBytes caps the text extracted from a single document
func WithMaxTextBytes(n int64) IntakeOption {
	return func(d *DocumentIntake) {
		if n > 0 {
			d.maxTextBytes = n
		}
	}
}

// NewDocumentIntake creates an intake with the plain text, DOCX and PDF
// extractors.
func NewDocumentIntake(logger *logrus.Logger, opts ...IntakeOption) *DocumentIntake {
	if logger == nil {
		logger = logrus.New()
	}
	d := &DocumentIntake{
		extractors:   make(map[string]domain.TextExtractor),
		logger:       logger,
		maxTextBytes: DefaultMaxTextBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Register(".txt", PlainTextExtractor{})
	d.Register(".docx", DocxExtractor{MaxBytes: d.maxTextBytes})
	d.Register(".pdf", PDFExtractor{MaxBytes: d.maxTextBytes})
	return d
}

// Register installs or replaces the extractor for an extension such as ".pdf".
func (d *DocumentIntake) Register(ext string, extractor domain.TextExtractor) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	d.extractors[ext] = extractor
}

// Supports reports whether an extractor exists for the file name's extension.
func (d *DocumentIntake) Supports(name string) bool {
	_, ok := d.extractors[extensionOf(name)]
	return ok
}

// ExtractText runs the extractor for name's extension. Empty output becomes
// NoTextPlaceholder.
func (d *DocumentIntake) ExtractText(ctx context.Context, name string, data []byte) (string, error) {
	ext := extensionOf(name)
	extractor, ok := d.extractors[ext]
	if !ok {
		return "", domain.NewAnalysisError(domain.ErrUnsupportedFormat,
			fmt.Sprintf("No text extractor is available for %s files", strings.TrimPrefix(ext, ".")),
			name, "")
	}

	text, err := extractor.Extract(ctx, data)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"extension": ext,
			"bytes":     len(data),
		}).WithError(err).Warn("Text extraction failed")
		if errors.Is(err, ErrTextTooLarge) {
			return "", domain.NewAnalysisError(domain.ErrExtraction, "The document contains too much text to analyze", err.Error(), "")
		}
		return "", domain.NewAnalysisError(domain.ErrExtraction, "Failed to extract text from the document", err.Error(), "")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return NoTextPlaceholder, nil
	}
	return text, nil
}

// PlainTextExtractor accepts UTF-8 text as is.
type PlainTextExtractor struct{}

// Extract returns data as a string after checking it is valid UTF-8.
func (PlainTextExtractor) Extract(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file is not valid UTF-8")
	}
	return string(data), nil
}

// DocxExtractor reads the paragraphs of an Office Open XML document.
// MaxBytes bounds the decompressed document body; zero means
// DefaultMaxTextBytes.
type DocxExtractor struct {
	MaxBytes int64
}

const wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// Extract returns paragraph text separated by newlines.
func (x DocxExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a DOCX archive: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("DOCX archive has no word/document.xml")
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open document body: %w", err)
	}
	defer rc.Close()

	return readWordprocessingText(ctx, newCappedReader(rc, x.MaxBytes))
}

// cappedReader fails with ErrTextTooLarge once more than n bytes are read.
type cappedReader struct {
	r io.Reader
	n int64
}

func newCappedReader(r io.Reader, limit int64) *cappedReader {
	if limit <= 0 {
		limit = DefaultMaxTextBytes
	}
	return &cappedReader{r: r, n: limit}
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		var one [1]byte
		k, err := c.r.Read(one[:])
		if k > 0 {
			return 0, ErrTextTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > c.n {
		p = p[:c.n]
	}
	k, err := c.r.Read(p)
	c.n -= int64(k)
	return k, err
}

func readWordprocessingText(ctx context.Context, r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var out strings.Builder
	inText := false
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if errors.Is(err, ErrTextTooLarge) {
			return "", err
		}
		if err != nil {
			return "", fmt.Errorf("malformed document XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String(), nil
}
