package pipeline

import (
	"context"
	"os"

	"github.com/chaos-io/ultra-bg-remover/apperr"
	"github.com/chaos-io/ultra-bg-remover/imaging"
	"github.com/chaos-io/ultra-bg-remover/logging"
	"github.com/chaos-io/ultra-bg-remover/rembg"
	"github.com/chaos-io/ultra-bg-remover/util"
)

// Result 最终返回给客户端的图片，只存在于内存中
type Result struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

func (r *Result) Size() int { return len(r.Data) }

// Service 串行执行：读取上传文件 → 抠图 → 重新编码 PNG
type Service struct {
	remover   rembg.Remover
	finalizer *imaging.Finalizer
}

func NewService(remover rembg.Remover, finalizer *imaging.Finalizer) *Service {
	return &Service{
		remover:   remover,
		finalizer: finalizer,
	}
}

// Process 处理磁盘上的上传文件，任一步失败都丢弃已有结果
// 抠图失败归为 PROCESSING_ERROR，重新编码失败归为 ENCODING_ERROR
func (s *Service) Process(ctx context.Context, path string) (*Result, error) {
	logger := logging.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessing, "read upload", err)
	}

	logger.Info("Removing background...", "bytes", len(data))
	cutout, err := s.removeBackground(ctx, data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessing, "remove background", err)
	}

	img, err := s.finalize(ctx, cutout)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEncoding, "encode png", err)
	}

	return &Result{
		Data:     img.Data,
		MimeType: img.MimeType(),
		Width:    img.Width,
		Height:   img.Height,
	}, nil
}

func (s *Service) removeBackground(ctx context.Context, data []byte) ([]byte, error) {
	defer util.Trace(ctx, "remove background")()
	return s.remover.Remove(ctx, data)
}

func (s *Service) finalize(ctx context.Context, data []byte) (*imaging.Image, error) {
	defer util.Trace(ctx, "finalize png")()
	return s.finalizer.Finalize(data)
}
