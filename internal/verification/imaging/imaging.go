// Package imaging prepares document photos for OCR using ImageMagick.
//
// Callers must bracket process lifetime with Initialize/Terminate.
package imaging

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/gographics/imagick.v3/imagick"

	"evoto/internal/verification/models"
)

// DefaultTargetHeight is the canonical height documents are rescaled to.
const DefaultTargetHeight = 1600

// DefaultRotations lists orientation hypotheses, most likely first.
var DefaultRotations = []int{0, 90, 180, 270}

// Initialize sets up the ImageMagick environment once per process.
func Initialize() { imagick.Initialize() }

// Terminate releases the ImageMagick environment.
func Terminate() { imagick.Terminate() }

// Normalizer rescales a document photo and renders it in each configured orientation.
type Normalizer struct {
	targetHeight uint
	rotations    []int
	workDir      string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithTargetHeight overrides the canonical height.
func WithTargetHeight(h uint) Option {
	return func(n *Normalizer) {
		if h > 0 {
			n.targetHeight = h
		}
	}
}

// WithRotations overrides the orientation hypotheses. At most models.MaxRotations are kept.
func WithRotations(degrees []int) Option {
	return func(n *Normalizer) {
		if len(degrees) > 0 {
			n.rotations = degrees
		}
	}
}

// WithWorkDir sets the scratch directory used for encoding variants.
func WithWorkDir(dir string) Option {
	return func(n *Normalizer) {
		if dir != "" {
			n.workDir = dir
		}
	}
}

// NewNormalizer builds a Normalizer with defaults applied.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		targetHeight: DefaultTargetHeight,
		rotations:    DefaultRotations,
		workDir:      os.TempDir(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if len(n.rotations) > models.MaxRotations {
		n.rotations = n.rotations[:models.MaxRotations]
	}
	return n
}

// Rotations returns the configured orientation hypotheses in trial order.
func (n *Normalizer) Rotations() []int {
	return append([]int(nil), n.rotations...)
}

// Variants decodes raw, rescales it to the target height and returns one PNG per
// configured rotation, 0° first. Undecodable input yields models.ErrImageDecode.
func (n *Normalizer) Variants(ctx context.Context, raw []byte) ([]models.Variant, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty upload", models.ErrImageDecode)
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageDecode, err)
	}
	width, height := mw.GetImageWidth(), mw.GetImageHeight()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: zero sized image", models.ErrImageDecode)
	}
	// Phone cameras store orientation in EXIF; bake it in before guessing rotations.
	if err := mw.AutoOrientImage(); err != nil {
		return nil, fmt.Errorf("auto orient: %w", err)
	}
	if err := n.rescale(mw); err != nil {
		return nil, err
	}

	background := imagick.NewPixelWand()
	defer background.Destroy()
	background.SetColor("white")

	variants := make([]models.Variant, 0, len(n.rotations))
	for _, degrees := range n.rotations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := n.render(mw, background, degrees)
		if err != nil {
			return nil, fmt.Errorf("render %d° variant: %w", degrees, err)
		}
		variants = append(variants, models.Variant{Rotation: degrees, Image: data})
	}
	return variants, nil
}

func (n *Normalizer) rescale(mw *imagick.MagickWand) error {
	width, height := mw.GetImageWidth(), mw.GetImageHeight()
	if height == n.targetHeight {
		return nil
	}
	scaled := uint(math.Round(float64(width) * float64(n.targetHeight) / float64(height)))
	if scaled == 0 {
		scaled = 1
	}
	if err := mw.ResizeImage(scaled, n.targetHeight, imagick.FILTER_LANCZOS); err != nil {
		return fmt.Errorf("resize: %w", err)
	}
	return nil
}

func (n *Normalizer) render(mw *imagick.MagickWand, background *imagick.PixelWand, degrees int) ([]byte, error) {
	variant := mw.Clone()
	defer variant.Destroy()

	if degrees%360 != 0 {
		if err := variant.RotateImage(background, float64(degrees)); err != nil {
			return nil, err
		}
	}
	return encodePNG(variant, n.workDir)
}

// encodePNG writes the wand through a scratch file and reads the bytes back.
func encodePNG(mw *imagick.MagickWand, workDir string) ([]byte, error) {
	if err := mw.SetImageFormat("PNG"); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(workDir, "evoto-*.png")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	if err := mw.WriteImage(filepath.Clean(path)); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
