package service

import (
	"context"
	"time"

	"evoto/internal/verification/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks Normalizer,TextExtractor,Verifier,Cropper,ObjectStore,SessionStore

// Normalizer renders a raw upload into rotation variants.
type Normalizer interface {
	Variants(ctx context.Context, raw []byte) ([]models.Variant, error)
}

// TextExtractor reads raw text from one variant.
type TextExtractor interface {
	Extract(ctx context.Context, img []byte) (string, error)
}

// Verifier runs the full pipeline over one document image.
type Verifier interface {
	Verify(ctx context.Context, image []byte, claimedRUT string) (models.Result, error)
}

// Cropper cuts the card out of a front-side photo before it is verified.
type Cropper interface {
	Crop(ctx context.Context, raw []byte) ([]byte, error)
}

// ObjectStore keeps the uploaded document images.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// SessionStore is the TTL-bound cache of verification sessions.
// Get returns sentinel.ErrNotFound for missing or expired entries.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
