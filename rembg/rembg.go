package rembg

import (
	"context"
	"fmt"
	"time"

	"github.com/chaos-io/ultra-bg-remover/config"
	nhttp "github.com/chaos-io/ultra-bg-remover/util/http"
)

// Remover 输入原始图片字节，返回背景已透明化的图片字节
// 失败原因不做解释，由调用方统一归类
type Remover interface {
	Remove(ctx context.Context, data []byte) ([]byte, error)
}

// HealthChecker 远程后端可以在启动时探活
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// New 按配置创建抠图后端
func New(cfg config.Config) (Remover, error) {
	switch cfg.RemBGBackend {
	case config.BackendRemBG:
		return NewServerRemBG(cfg.RemBGURL, cfg.RemBGModel, nhttp.NewHTTPClientWithTimeout(cfg.RemBGTimeout)), nil
	case config.BackendBiRefNet:
		return NewBiRefNetRemBG(cfg.ComfyUIURL, nhttp.NewHTTPClientWithTimeout(cfg.RemBGTimeout)), nil
	case config.BackendKeyer:
		return NewKeyerRemBG(cfg.KeyerTolerance, cfg.MaxPixels), nil
	default:
		return nil, fmt.Errorf("unknown rembg backend %q", cfg.RemBGBackend)
	}
}

// CheckHealth 对支持探活的后端做一次检查，本地后端直接返回 nil
func CheckHealth(ctx context.Context, r Remover) error {
	hc, ok := r.(HealthChecker)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return hc.CheckHealth(ctx)
}
