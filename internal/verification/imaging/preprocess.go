package imaging

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/gographics/imagick.v3/imagick"
)

const (
	medianSize = 3  // 3x3 neighbourhood
	blockSize  = 31 // 31x31 neighbourhood for the local mean
	// thresholdOffset darkens the local mean a little so paper grain stays white.
	thresholdOffset = 10.0 / 255.0
)

// Preprocessor turns a variant into a black and white PNG ready for OCR:
// grayscale, 3x3 median, then a local-mean adaptive threshold.
type Preprocessor struct {
	workDir string
}

// NewPreprocessor returns a Preprocessor writing scratch files under workDir.
func NewPreprocessor(workDir string) *Preprocessor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Preprocessor{workDir: workDir}
}

func (p *Preprocessor) Preprocess(ctx context.Context, img []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(img); err != nil {
		return nil, fmt.Errorf("read variant: %w", err)
	}
	if err := mw.TransformImageColorspace(imagick.COLORSPACE_GRAY); err != nil {
		return nil, fmt.Errorf("grayscale: %w", err)
	}
	if err := mw.StatisticImage(imagick.STATISTIC_MEDIAN, medianSize, medianSize); err != nil {
		return nil, fmt.Errorf("median: %w", err)
	}
	// Pixels at or below mean+bias become ink, so a negative bias keeps flat paper white.
	if err := mw.AdaptiveThresholdImage(blockSize, blockSize, -thresholdOffset*float64(imagick.QUANTUM_RANGE)); err != nil {
		return nil, fmt.Errorf("adaptive threshold: %w", err)
	}
	return encodePNG(mw, p.workDir)
}
