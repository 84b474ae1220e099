package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoto/internal/verification/models"
)

type stubEngine struct {
	text string
	err  error
	got  []byte
}

func (s *stubEngine) Recognize(_ context.Context, img []byte) (string, error) {
	s.got = img
	return s.text, s.err
}

type stubPreprocessor struct {
	out   []byte
	err   error
	calls int
}

func (s *stubPreprocessor) Preprocess(_ context.Context, img []byte) ([]byte, error) {
	s.calls++
	if s.out != nil {
		return s.out, s.err
	}
	return img, s.err
}

func documentPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 80, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 80; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	// a dark stroke on light paper
	for y := 15; y < 25; y++ {
		for x := 20; x < 60; x++ {
			img.SetGray(x, y, color.Gray{Y: 20})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtractor(t *testing.T) {
	t.Run("returns engine text after preprocessing", func(t *testing.T) {
		pre := &stubPreprocessor{}
		engine := &stubEngine{text: "RUN 12.345.678-5"}

		text, err := NewExtractor(pre, engine).Extract(context.Background(), documentPNG(t))
		require.NoError(t, err)
		assert.Equal(t, "RUN 12.345.678-5", text)
		assert.Equal(t, 1, pre.calls)

		_, format, err := image.DecodeConfig(bytes.NewReader(engine.got))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
	})

	t.Run("engine reads the preprocessed bytes as they are", func(t *testing.T) {
		pre := &stubPreprocessor{out: []byte("thresholded")}
		engine := &stubEngine{}

		_, err := NewExtractor(pre, engine).Extract(context.Background(), documentPNG(t))
		require.NoError(t, err)
		assert.Equal(t, []byte("thresholded"), engine.got)
	})

	t.Run("empty text is not an error", func(t *testing.T) {
		text, err := NewExtractor(nil, &stubEngine{}).Extract(context.Background(), documentPNG(t))
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("engine unavailability is preserved", func(t *testing.T) {
		engine := &stubEngine{err: models.ErrOCREngineUnavailable}
		_, err := NewExtractor(nil, engine).Extract(context.Background(), documentPNG(t))
		assert.ErrorIs(t, err, models.ErrOCREngineUnavailable)
	})

	t.Run("preprocess failure is reported", func(t *testing.T) {
		pre := &stubPreprocessor{err: errors.New("wand exploded")}
		_, err := NewExtractor(pre, &stubEngine{}).Extract(context.Background(), documentPNG(t))
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrOCREngineUnavailable)
	})
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts stand in for tesseract")
	}
	path := filepath.Join(t.TempDir(), "fake-tesseract")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestTesseractEngine(t *testing.T) {
	t.Run("missing binary is unavailable", func(t *testing.T) {
		engine := NewTesseractEngine(filepath.Join(t.TempDir(), "nope"), "", 0)
		_, err := engine.Recognize(context.Background(), []byte("png"))
		assert.ErrorIs(t, err, models.ErrOCREngineUnavailable)
		assert.ErrorIs(t, engine.Available(), models.ErrOCREngineUnavailable)
	})

	t.Run("stdout becomes the text", func(t *testing.T) {
		bin := writeScript(t, "cat >/dev/null\necho \"$4 $6\"\n")
		text, err := NewTesseractEngine(bin, "", 0).Recognize(context.Background(), []byte("png"))
		require.NoError(t, err)
		assert.Equal(t, "spa 11\n", text)
	})

	t.Run("missing language data is unavailable", func(t *testing.T) {
		bin := writeScript(t, "cat >/dev/null\necho \"Failed loading language 'spa'\" >&2\nexit 1\n")
		_, err := NewTesseractEngine(bin, "", 0).Recognize(context.Background(), []byte("png"))
		assert.ErrorIs(t, err, models.ErrOCREngineUnavailable)
	})

	t.Run("other failures are transient", func(t *testing.T) {
		bin := writeScript(t, "cat >/dev/null\necho \"Error in pixReadMem\" >&2\nexit 1\n")
		_, err := NewTesseractEngine(bin, "", 0).Recognize(context.Background(), []byte("png"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrOCREngineUnavailable)
	})
}
