package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/ultra-bg-remover/apperr"
	"github.com/chaos-io/ultra-bg-remover/imaging"
	"github.com/chaos-io/ultra-bg-remover/rembg"
)

type removerFunc func(ctx context.Context, data []byte) ([]byte, error)

func (f removerFunc) Remove(ctx context.Context, data []byte) ([]byte, error) {
	return f(ctx, data)
}

func writeJPEG(t *testing.T, size int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
		img.Pix[i+3] = 255
	}
	img.Set(size/2, size/2, color.RGBA{B: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	path := filepath.Join(t.TempDir(), "red.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestService_Process(t *testing.T) {
	t.Parallel()

	s := NewService(rembg.NewKeyerRemBG(48, 0), imaging.NewFinalizer(imaging.DefaultOptions()))
	got, err := s.Process(context.Background(), writeJPEG(t, 50))
	require.NoError(t, err)

	assert.Equal(t, imaging.MimeTypePNG, got.MimeType)
	assert.Equal(t, len(got.Data), got.Size())
	assert.Equal(t, 50, got.Width)
	assert.Equal(t, 50, got.Height)
	assert.True(t, bytes.HasPrefix(got.Data, []byte("\x89PNG\r\n\x1a\n")))
}

func TestService_ProcessErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("model exploded")
	tests := []struct {
		name     string
		remover  rembg.Remover
		path     func(t *testing.T) string
		wantKind apperr.Kind
		wantErr  error
	}{
		{
			name: "抠图失败",
			remover: removerFunc(func(ctx context.Context, data []byte) ([]byte, error) {
				return nil, boom
			}),
			path:     func(t *testing.T) string { return writeJPEG(t, 8) },
			wantKind: apperr.KindProcessing,
			wantErr:  boom,
		},
		{
			name: "抠图结果无法解码",
			remover: removerFunc(func(ctx context.Context, data []byte) ([]byte, error) {
				return []byte("garbage"), nil
			}),
			path:     func(t *testing.T) string { return writeJPEG(t, 8) },
			wantKind: apperr.KindEncoding,
		},
		{
			name:     "上传文件已不存在",
			remover:  rembg.NewKeyerRemBG(48, 0),
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone.jpg") },
			wantKind: apperr.KindProcessing,
			wantErr:  os.ErrNotExist,
		},
		{
			name:     "像素超过上限",
			remover:  rembg.NewKeyerRemBG(48, 4*4),
			path:     func(t *testing.T) string { return writeJPEG(t, 8) },
			wantKind: apperr.KindProcessing,
			wantErr:  imaging.ErrTooManyPixels,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewService(tt.remover, imaging.NewFinalizer(imaging.DefaultOptions()))
			got, err := s.Process(context.Background(), tt.path(t))
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestService_ProcessSameInputSameDimensions(t *testing.T) {
	t.Parallel()

	s := NewService(rembg.NewKeyerRemBG(48, 0), imaging.NewFinalizer(imaging.DefaultOptions()))
	path := writeJPEG(t, 32)

	first, err := s.Process(context.Background(), path)
	require.NoError(t, err)
	second, err := s.Process(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, first.Width, second.Width)
	assert.Equal(t, first.Height, second.Height)
}
