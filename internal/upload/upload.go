package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

var (
	ErrNoFile     = errors.New("no file selected")
	ErrNotPDF     = errors.New("only PDF files are allowed")
	ErrTooLarge   = errors.New("file exceeds max size")
	ErrUnreadable = errors.New("file is not a readable PDF")
)

// File is a locally validated PDF ready to be streamed to the summarizer.
type File struct {
	Name  string
	Data  []byte
	Pages int
}

// Open reads and validates the PDF at path.
func Open(path string, maxBytes int64) (*File, error) {
	if path == "" {
		return nil, ErrNoFile
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoFile, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(filepath.Base(path), f, maxBytes)
}

// Read validates a PDF read from r, reading at most maxBytes+1 bytes.
func Read(name string, r io.Reader, maxBytes int64) (*File, error) {
	if r == nil {
		return nil, ErrNoFile
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return FromBytes(name, data, maxBytes)
}

// FromBytes validates an in-memory PDF.
func FromBytes(name string, data []byte, maxBytes int64) (*File, error) {
	name = SanitizeFilename(name)
	if !IsPDFName(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotPDF, filepath.Ext(name))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnreadable, name)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	pages, err := countPages(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
	}
	return &File{Name: name, Data: data, Pages: pages}, nil
}

// IsPDFName reports whether name has a .pdf extension.
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// SanitizeFilename strips path components from an uploaded filename.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}

func countPages(data []byte) (n int, err error) {
	// The pdf library panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, errors.New("missing %PDF header")
	}
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	n = reader.NumPage()
	if n <= 0 {
		return 0, errors.New("pdf has no pages")
	}
	return n, nil
}
