package models

import (
	"errors"
	"time"
)

// Pipeline failures that must stay distinguishable from "no identifier found".
var (
	// ErrImageDecode means the upload is not a decodable image. User-correctable.
	ErrImageDecode = errors.New("image could not be decoded")
	// ErrOCREngineUnavailable means the OCR backend cannot be invoked at all.
	ErrOCREngineUnavailable = errors.New("ocr engine unavailable")
)

// MaxRotations bounds the number of orientation hypotheses tried per document.
const MaxRotations = 4

// Status is the tagged outcome of a document verification.
type Status string

const (
	StatusMatched    Status = "matched"
	StatusMismatched Status = "mismatched"
	StatusNotFound   Status = "not_found"
)

// Variant is one normalized, rotated rendition of a document photo.
type Variant struct {
	Rotation int // degrees clockwise
	Image    []byte
}

// Result is the outcome of running the pipeline over one document image.
type Result struct {
	Status        Status        `json:"status"`
	DetectedRUT   string        `json:"detected_rut,omitempty"`
	Rotations     int           `json:"rotations"`
	Elapsed       time.Duration `json:"elapsed"`
	FrontImageKey string        `json:"front_image_key,omitempty"`
	BackImageKey  string        `json:"back_image_key,omitempty"`
	// CroppedKey is the card region the text was read from.
	CroppedKey string    `json:"cropped_key,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Matched reports whether the detected identifier equals the claimed one.
func (r Result) Matched() bool {
	return r.Status == StatusMatched
}

// Found reports whether any identifier was read from the document.
func (r Result) Found() bool {
	return r.Status == StatusMatched || r.Status == StatusMismatched
}

// Session is the server-side state carried from document upload to vote commit.
// It lives in a TTL-bound cache keyed by the voting session ID.
type Session struct {
	ID            string        `json:"id"`
	Subject       string        `json:"subject"`
	LoginAt       time.Time     `json:"login_at"`
	Attempts      int           `json:"attempts"`
	DetectionTime time.Duration `json:"detection_time"`
	Result        *Result       `json:"result,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Verified reports whether a verification result is ready to be committed.
func (s *Session) Verified() bool {
	return s != nil && s.Result != nil
}
