package imaging

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/gographics/imagick.v3/imagick"

	"evoto/internal/verification/models"
)

const (
	defaultCropPadding = 10
	// Edges weaker than this fraction of full intensity are background texture.
	edgeThreshold = 75.0 / 255.0
	// A detected card smaller than this share of the photo is noise, not the card.
	minCardCoverage = 0.05
)

// Cropper cuts the identity card out of a phone photo. It finds the bounding box
// of the strong edges in a blurred grayscale copy and crops the original to that
// box plus padding. When nothing card sized is found the photo is kept whole.
type Cropper struct {
	padding uint
	workDir string
}

// NewCropper returns a Cropper writing scratch files under workDir.
func NewCropper(workDir string) *Cropper {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Cropper{padding: defaultCropPadding, workDir: workDir}
}

// Crop returns the card region of raw as PNG. Undecodable input yields
// models.ErrImageDecode.
func (c *Cropper) Crop(ctx context.Context, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty upload", models.ErrImageDecode)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageDecode, err)
	}
	if err := mw.AutoOrientImage(); err != nil {
		return nil, fmt.Errorf("auto orient: %w", err)
	}
	width, height := mw.GetImageWidth(), mw.GetImageHeight()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: zero sized image", models.ErrImageDecode)
	}

	box, ok, err := edgeBox(mw)
	if err != nil {
		return nil, err
	}
	if ok && box.area() >= uint(minCardCoverage*float64(width*height)) {
		box = box.pad(c.padding, width, height)
		if err := mw.CropImage(box.w, box.h, box.x, box.y); err != nil {
			return nil, fmt.Errorf("crop: %w", err)
		}
		if err := mw.ResetImagePage(""); err != nil {
			return nil, fmt.Errorf("reset page: %w", err)
		}
	}
	return encodePNG(mw, c.workDir)
}

type rect struct {
	x, y int
	w, h uint
}

func (r rect) area() uint { return r.w * r.h }

// pad grows r by p on every side, clamped to a width x height canvas.
func (r rect) pad(p, width, height uint) rect {
	x0 := max(r.x-int(p), 0)
	y0 := max(r.y-int(p), 0)
	x1 := min(r.x+int(r.w)+int(p), int(width))
	y1 := min(r.y+int(r.h)+int(p), int(height))
	return rect{x: x0, y: y0, w: uint(x1 - x0), h: uint(y1 - y0)}
}

// edgeBox locates the bounding box of strong edges. ok is false when the
// photo has no edges at all.
func edgeBox(src *imagick.MagickWand) (rect, bool, error) {
	mask := src.Clone()
	defer mask.Destroy()

	if err := mask.TransformImageColorspace(imagick.COLORSPACE_GRAY); err != nil {
		return rect{}, false, fmt.Errorf("grayscale: %w", err)
	}
	if err := mask.GaussianBlurImage(0, 1); err != nil {
		return rect{}, false, fmt.Errorf("blur: %w", err)
	}
	if err := mask.EdgeImage(1); err != nil {
		return rect{}, false, fmt.Errorf("edge detect: %w", err)
	}
	if err := mask.ThresholdImage(edgeThreshold * float64(imagick.QUANTUM_RANGE)); err != nil {
		return rect{}, false, fmt.Errorf("threshold edges: %w", err)
	}
	// The mask is white edges on black; trimming the black leaves the edge box,
	// with its offset kept in the page geometry.
	if err := mask.TrimImage(0); err != nil {
		return rect{}, false, fmt.Errorf("trim: %w", err)
	}
	_, _, x, y, err := mask.GetImagePage()
	if err != nil {
		return rect{}, false, fmt.Errorf("read page: %w", err)
	}
	box := rect{x: x, y: y, w: mask.GetImageWidth(), h: mask.GetImageHeight()}
	if x < 0 || y < 0 || box.w <= 1 || box.h <= 1 {
		return rect{}, false, nil
	}
	return box, true, nil
}
