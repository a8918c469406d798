package rembg

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/ultra-bg-remover/config"
)

// squareOnBackground 白底中间一块红色方块
func squareOnBackground(t *testing.T, size, inset int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if x >= inset && x < size-inset && y >= inset && y < size-inset {
				c = color.NRGBA{R: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend string
		want    any
		wantErr bool
	}{
		{backend: config.BackendRemBG, want: &ServerRemBG{}},
		{backend: config.BackendBiRefNet, want: &BiRefNetRemBG{}},
		{backend: config.BackendKeyer, want: &KeyerRemBG{}},
		{backend: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.backend, func(t *testing.T) {
			t.Parallel()

			r, err := New(config.Config{RemBGBackend: tt.backend, KeyerTolerance: 10})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, r)
		})
	}
}

func TestCheckHealth_LocalBackend(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckHealth(context.Background(), NewKeyerRemBG(10, 0)))
}
