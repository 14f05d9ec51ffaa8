package metadata

import (
	"errors"
	"os"

	"github.com/bep/imagemeta"
)

var errFoundKeyword = errors.New("keyword found")

var keywordTags = map[imagemeta.Source]string{
	imagemeta.IPTC: "Keywords",
	imagemeta.XMP:  "Subject",
}

// QuickReader checks for embedded keywords without spawning exiftool.
type QuickReader struct{}

// HasTags reports whether path carries at least one IPTC keyword or XMP
// subject. Formats the decoder does not understand report false.
func (QuickReader) HasTags(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	found := false
	// Decode errors cover unsupported formats and damaged metadata blocks;
	// both mean no usable keywords.
	_, _ = imagemeta.Decode(imagemeta.Options{
		R:       f,
		Sources: imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return keywordTags[ti.Source] == ti.Tag
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if len(fieldStrings(ti.Value)) > 0 {
				found = true
				return errFoundKeyword
			}
			return nil
		},
	})
	return found, nil
}
