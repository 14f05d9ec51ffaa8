package metadata

import (
	"fmt"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
)

const (
	fieldKeywords = "Keywords"
	fieldSubject  = "Subject"
)

// ExiftoolStore reads and writes IPTC Keywords and XMP Subject through a
// persistent exiftool process. It is safe for concurrent use.
type ExiftoolStore struct {
	mu sync.Mutex
	et *exiftool.Exiftool
}

// NewExiftoolStore starts exiftool from binary ("exiftool" resolves via PATH).
func NewExiftoolStore(binary string) (*ExiftoolStore, error) {
	opts := []func(*exiftool.Exiftool) error{}
	if b := strings.TrimSpace(binary); b != "" && b != "exiftool" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(b))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolStore{et: et}, nil
}

// Close stops the exiftool process.
func (s *ExiftoolStore) Close() error {
	if s == nil || s.et == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.et.Close()
}

// ReadTags returns the union of IPTC Keywords and XMP Subject.
func (s *ExiftoolStore) ReadTags(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.et.ExtractMetadata(path)
	if len(results) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", path)
	}
	fm := results[0]
	if fm.Err != nil {
		return nil, fm.Err
	}
	return Union(fieldStrings(fm.Fields[fieldKeywords]), fieldStrings(fm.Fields[fieldSubject])), nil
}

// WriteTags replaces the file's keywords with tags.
func (s *ExiftoolStore) WriteTags(path string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.et.ExtractMetadata(path)
	if len(results) == 0 {
		return fmt.Errorf("exiftool returned no metadata for %s", path)
	}
	fm := results[0]
	if fm.Err != nil {
		return fm.Err
	}
	fm.SetStrings(fieldKeywords, tags)
	fm.SetStrings(fieldSubject, tags)

	batch := []exiftool.FileMetadata{fm}
	s.et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("write metadata: %w", batch[0].Err)
	}
	return nil
}

// fieldStrings flattens an exiftool JSON field: a single keyword arrives as a
// scalar, several as an array, and numeric-looking keywords as numbers.
func fieldStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fieldStrings(item)...)
		}
		return out
	default:
		return []string{fmt.Sprint(val)}
	}
}
