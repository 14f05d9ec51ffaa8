// Package annotate defines the contract between the scheduler and the remote
// services that turn an image into tags.
//
// Implementations live in subpackages: saucenao performs the reverse image
// search and, through a TagSource, resolves the matched post's tags; dedup
// decorates any Annotator with a perceptual-hash cache. Errors are classified
// with KindOf so the scheduler can decide whether to drop, defer, or preserve
// the item.
package annotate

import (
	"context"

	"saucetag/internal/quota"
)

// Result is the outcome of a successful annotation.
type Result struct {
	// Tags are the remote tags for the image. Empty when LowConfidence.
	Tags []string
	// Quota is the remote's reported allowance. Nil when no call was made or
	// the response carried none. It may also be set alongside an error.
	Quota *quota.State
	// LowConfidence is set when the best match fell below the similarity
	// threshold.
	LowConfidence bool
	// Cached is set when the tags came from a local cache and no remote call
	// was made.
	Cached bool
	// Source describes where the tags came from, for example a post URL.
	Source string
	// Similarity is the best match score, when known.
	Similarity float64
}

// Annotator returns tags for the image at path.
type Annotator interface {
	Annotate(ctx context.Context, path string) (Result, error)
}

// TagSource resolves a booru post ID into its tag list.
type TagSource interface {
	PostTags(ctx context.Context, id int) ([]string, error)
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(ctx context.Context, path string) (Result, error)

// Annotate calls f.
func (f AnnotatorFunc) Annotate(ctx context.Context, path string) (Result, error) {
	return f(ctx, path)
}
