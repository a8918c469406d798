package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

const MimeTypePNG = "image/png"

type Options struct {
	// Quality 1..100，小于 100 时允许在颜色数不超过 256 的情况下输出调色板 PNG（无损）
	Quality int
	// CompressionLevel 0..9，对应 zlib 的压缩级别
	CompressionLevel int
	// MaxDimension 最长边上限，0 表示不缩放
	MaxDimension int
	// MaxPixels 输入像素上限，0 表示 DefaultMaxPixels
	MaxPixels int
}

func DefaultOptions() Options {
	return Options{Quality: 90, CompressionLevel: 6, MaxPixels: DefaultMaxPixels}
}

type Image struct {
	Data   []byte
	Width  int
	Height int
}

func (i *Image) MimeType() string { return MimeTypePNG }

func (i *Image) Size() int { return len(i.Data) }

type Finalizer struct {
	opts    Options
	encoder *png.Encoder
}

func NewFinalizer(opts Options) *Finalizer {
	return &Finalizer{
		opts:    opts,
		encoder: &png.Encoder{CompressionLevel: compressionLevel(opts.CompressionLevel)},
	}
}

// Finalize 把抠图结果重新编码为带 alpha 的 PNG
//
//	解码 → NRGBA → 可选缩放 → 调色板或真彩色编码
func (f *Finalizer) Finalize(data []byte) (*Image, error) {
	img, _, err := Decode(data, f.opts.MaxPixels)
	if err != nil {
		return nil, err
	}

	src := resizeWithinMax(ToNRGBA(img), f.opts.MaxDimension)
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())
	}

	// 输出必须带 alpha：调色板走 tRNS，真彩色强制 RGBA（color type 6）
	var out image.Image = alphaNRGBA{src}
	if f.opts.Quality < 100 {
		if p, ok := toPaletted(src); ok {
			out = p
		}
	}

	var buf bytes.Buffer
	if err := f.encoder.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	return &Image{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// compressionLevel 把 0..9 映射到 Go 标准库仅有的四档
func compressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// alphaNRGBA 让 png.Encoder 即使在全不透明时也写出 RGBA
type alphaNRGBA struct {
	*image.NRGBA
}

func (alphaNRGBA) Opaque() bool { return false }

// toPaletted 颜色数不超过 256 时无损转换为调色板图像
// 调色板里没有透明色时补一个不被引用的透明项，保证写出 tRNS
func toPaletted(img *image.NRGBA) (*image.Paletted, bool) {
	index := make(map[color.NRGBA]uint8, 256)
	palette := make(color.Palette, 0, 256)

	for i := 0; i < len(img.Pix); i += 4 {
		c := color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: img.Pix[i+3]}
		if _, ok := index[c]; ok {
			continue
		}
		if len(palette) == 256 {
			return nil, false
		}
		index[c] = uint8(len(palette))
		palette = append(palette, c)
	}

	hasAlpha := false
	for _, c := range palette {
		if c.(color.NRGBA).A != 0xff {
			hasAlpha = true
			break
		}
	}
	if !hasAlpha {
		if len(palette) == 256 {
			return nil, false
		}
		palette = append(palette, color.NRGBA{})
	}

	b := img.Bounds()
	dst := image.NewPaletted(b, palette)
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x := range row {
			c := color.NRGBA{R: src[x*4], G: src[x*4+1], B: src[x*4+2], A: src[x*4+3]}
			row[x] = index[c]
		}
	}
	return dst, true
}
