//go:build integration

package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoto/internal/verification/models"
)

func TestMain(m *testing.M) {
	Initialize()
	code := m.Run()
	Terminate()
	os.Exit(code)
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizerVariants(t *testing.T) {
	n := NewNormalizer(WithTargetHeight(200), WithWorkDir(t.TempDir()))

	variants, err := n.Variants(context.Background(), samplePNG(t, 300, 100))
	require.NoError(t, err)
	require.Len(t, variants, 4)

	wantRotations := []int{0, 90, 180, 270}
	for i, v := range variants {
		assert.Equal(t, wantRotations[i], v.Rotation)
		cfg, format, err := image.DecodeConfig(bytes.NewReader(v.Image))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		if v.Rotation%180 == 0 {
			assert.Equal(t, 200, cfg.Height)
			assert.Equal(t, 600, cfg.Width)
		} else {
			assert.Equal(t, 600, cfg.Height)
			assert.Equal(t, 200, cfg.Width)
		}
	}
}

func TestNormalizerCapsRotations(t *testing.T) {
	n := NewNormalizer(WithRotations([]int{0, 45, 90, 135, 180, 270}))
	assert.Len(t, n.Rotations(), models.MaxRotations)
}

func TestNormalizerRejectsUndecodableInput(t *testing.T) {
	n := NewNormalizer(WithWorkDir(t.TempDir()))

	_, err := n.Variants(context.Background(), []byte("definitely not an image"))
	require.ErrorIs(t, err, models.ErrImageDecode)

	_, err = n.Variants(context.Background(), nil)
	require.ErrorIs(t, err, models.ErrImageDecode)
}

// cardPhoto draws a light card with a dark text line on a darker table.
func cardPhoto(t *testing.T, w, h int, card image.Rectangle) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(110)
			if (image.Point{X: x, Y: y}).In(card) {
				v = 245
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	if !card.Empty() {
		line := image.Rect(card.Min.X+20, card.Min.Y+card.Dy()/2-5, card.Max.X-20, card.Min.Y+card.Dy()/2+5)
		for y := line.Min.Y; y < line.Max.Y; y++ {
			for x := line.Min.X; x < line.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: 15})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessorProducesBinaryPNG(t *testing.T) {
	p := NewPreprocessor(t.TempDir())

	out, err := p.Preprocess(context.Background(), cardPhoto(t, 200, 120, image.Rect(0, 0, 200, 120)))
	require.NoError(t, err)

	decoded, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 200, decoded.Bounds().Dx())

	ink := color.GrayModel.Convert(decoded.At(100, 60)).(color.Gray).Y
	paper := color.GrayModel.Convert(decoded.At(5, 5)).(color.Gray).Y
	assert.Equal(t, uint8(0), ink, "text line should be ink")
	assert.Equal(t, uint8(255), paper, "flat paper should stay white")

	b := decoded.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := color.GrayModel.Convert(decoded.At(x, y)).(color.Gray).Y
			require.True(t, v == 0 || v == 255, "pixel (%d,%d) not binary: %d", x, y, v)
		}
	}
}

func TestCropperCutsCardFromTable(t *testing.T) {
	c := NewCropper(t.TempDir())
	card := image.Rect(100, 90, 300, 210)

	out, err := c.Crop(context.Background(), cardPhoto(t, 400, 300, card))
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	// card plus padding on each side, give or take the blur spreading the edge
	assert.InDelta(t, card.Dx()+2*defaultCropPadding, cfg.Width, 10)
	assert.InDelta(t, card.Dy()+2*defaultCropPadding, cfg.Height, 10)
}

func TestCropperKeepsPhotoWithoutCard(t *testing.T) {
	c := NewCropper(t.TempDir())
	blank := image.Rect(0, 0, 0, 0)

	out, err := c.Crop(context.Background(), cardPhoto(t, 300, 200, blank))
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestCropperRejectsUndecodableInput(t *testing.T) {
	c := NewCropper(t.TempDir())

	_, err := c.Crop(context.Background(), []byte("not a photo"))
	require.ErrorIs(t, err, models.ErrImageDecode)
}
