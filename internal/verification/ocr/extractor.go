// Package ocr turns a normalized document variant into raw text.
package ocr

import (
	"context"
	"fmt"
)

// Preprocessor cleans a variant up before OCR (grayscale, denoise, threshold).
type Preprocessor interface {
	Preprocess(ctx context.Context, img []byte) ([]byte, error)
}

// Engine is an OCR backend.
type Engine interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

// Extractor runs preprocessing and OCR over one variant.
type Extractor struct {
	pre    Preprocessor
	engine Engine
}

// NewExtractor builds an Extractor. pre may be nil, in which case the variant
// goes to the engine untouched.
func NewExtractor(pre Preprocessor, engine Engine) *Extractor {
	return &Extractor{pre: pre, engine: engine}
}

// Extract returns the raw text read from img, possibly empty.
func (e *Extractor) Extract(ctx context.Context, img []byte) (string, error) {
	if e.pre != nil {
		prepared, err := e.pre.Preprocess(ctx, img)
		if err != nil {
			return "", fmt.Errorf("preprocess: %w", err)
		}
		img = prepared
	}

	return e.engine.Recognize(ctx, img)
}
