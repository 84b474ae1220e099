package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"evoto/internal/verification/models"
)

const (
	DefaultBinary   = "tesseract"
	DefaultLanguage = "spa"
	// DefaultPageSegMode is tesseract's "sparse text" mode; ID cards are not paragraphs.
	DefaultPageSegMode = 11
)

// Stderr fragments tesseract prints when its language data cannot be loaded.
var missingLanguageMarkers = []string{
	"Failed loading language",
	"Error opening data file",
	"Could not initialize tesseract",
}

// TesseractEngine runs the tesseract CLI over stdin/stdout.
type TesseractEngine struct {
	binary   string
	language string
	psm      int
}

func NewTesseractEngine(binary, language string, psm int) *TesseractEngine {
	if binary == "" {
		binary = DefaultBinary
	}
	if language == "" {
		language = DefaultLanguage
	}
	if psm <= 0 {
		psm = DefaultPageSegMode
	}
	return &TesseractEngine{binary: binary, language: language, psm: psm}
}

// Available reports whether the binary can be resolved on PATH.
func (t *TesseractEngine) Available() error {
	if _, err := exec.LookPath(t.binary); err != nil {
		return fmt.Errorf("%w: %v", models.ErrOCREngineUnavailable, err)
	}
	return nil
}

// Recognize returns the text tesseract reads from a PNG. The text may be empty.
func (t *TesseractEngine) Recognize(ctx context.Context, img []byte) (string, error) {
	path, err := exec.LookPath(t.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrOCREngineUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, path, "stdin", "stdout",
		"-l", t.language, "--psm", strconv.Itoa(t.psm))
	cmd.Stdin = bytes.NewReader(img)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", classify(ctx, err, stderr.String())
	}
	return stdout.String(), nil
}

// classify separates "engine cannot run at all" from failures worth retrying
// on the next variant.
func classify(ctx context.Context, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", models.ErrOCREngineUnavailable, err)
	}
	for _, marker := range missingLanguageMarkers {
		if strings.Contains(stderr, marker) {
			return fmt.Errorf("%w: %s", models.ErrOCREngineUnavailable, strings.TrimSpace(stderr))
		}
	}
	return fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr))
}
