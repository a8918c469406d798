package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/chaos-io/ultra-bg-remover/imaging"
)

// KeyerRemBG 本地兜底实现，不依赖模型：
// 取图片边框像素的平均色作为背景色，从边框开始做 flood fill，
// 与背景色距离不超过 tolerance 的连通像素置为透明
type KeyerRemBG struct {
	tolerance float64
	maxPixels int
}

// maxPixels <= 0 时使用 imaging.DefaultMaxPixels
func NewKeyerRemBG(tolerance float64, maxPixels int) *KeyerRemBG {
	return &KeyerRemBG{tolerance: tolerance, maxPixels: maxPixels}
}

func (k *KeyerRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	img, _, err := imaging.Decode(data, k.maxPixels)
	if err != nil {
		return nil, err
	}

	src := imaging.ToNRGBA(img)
	// 已经带透明度的图片视为抠过图，原样返回
	if !imaging.HasUsefulAlpha(src) {
		k.key(src)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (k *KeyerRemBG) key(img *image.NRGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return
	}

	bg := borderColor(img)
	limit := k.tolerance * k.tolerance
	visited := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))

	push := func(x, y int) {
		i := y*w + x
		if visited[i] {
			return
		}
		visited[i] = true
		if colorDist2(img, x, y, bg) <= limit {
			queue = append(queue, i)
		}
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		img.Pix[y*img.Stride+x*4+3] = 0

		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}
}

// borderColor 边框像素的平均色
func borderColor(img *image.NRGBA) [3]float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var sum [3]float64
	n := 0
	add := func(x, y int) {
		p := img.Pix[y*img.Stride+x*4:]
		sum[0] += float64(p[0])
		sum[1] += float64(p[1])
		sum[2] += float64(p[2])
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		add(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		add(w-1, y)
	}
	return [3]float64{sum[0] / float64(n), sum[1] / float64(n), sum[2] / float64(n)}
}

func colorDist2(img *image.NRGBA, x, y int, c [3]float64) float64 {
	p := img.Pix[y*img.Stride+x*4:]
	dr := float64(p[0]) - c[0]
	dg := float64(p[1]) - c[1]
	db := float64(p[2]) - c[2]
	return dr*dr + dg*dg + db*db
}
