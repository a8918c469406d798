package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// 上传
	UploadDir      string
	MaxUploadBytes int64

	// 抠图后端
	RemBGBackend   string
	RemBGURL       string
	RemBGModel     string
	ComfyUIURL     string
	RemBGTimeout   time.Duration
	KeyerTolerance float64

	// PNG 输出
	PNGQuality     int
	PNGCompression int
	MaxDimension   int
	MaxPixels      int

	// 临时目录清理
	JanitorSchedule string
	JanitorMaxAge   time.Duration

	LogLevel  string
	LogFormat string
	GinMode   string
}

const (
	BackendRemBG    = "rembg"
	BackendBiRefNet = "birefnet"
	BackendKeyer    = "keyer"
)

// Load 从环境变量读取配置，数值类变量非法时返回错误
func Load() (Config, error) {
	cfg := Config{
		Port:            getEnv("PORT", "3000"),
		UploadDir:       getEnv("UPLOAD_DIR", "./uploads"),
		RemBGBackend:    strings.ToLower(getEnv("REMBG_BACKEND", BackendRemBG)),
		RemBGURL:        strings.TrimRight(getEnv("REMBG_URL", "http://localhost:7000"), "/"),
		RemBGModel:      getEnv("REMBG_MODEL", "u2net"),
		ComfyUIURL:      strings.TrimRight(getEnv("COMFYUI_URL", "http://localhost:8188"), "/"),
		JanitorSchedule: os.Getenv("JANITOR_SCHEDULE"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		GinMode:         getEnv("GIN_MODE", "release"),
	}
	if _, ok := os.LookupEnv("JANITOR_SCHEDULE"); !ok {
		cfg.JanitorSchedule = "@every 10m"
	}

	var err error
	if cfg.MaxUploadBytes, err = getInt64("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return Config{}, err
	}
	if cfg.RemBGTimeout, err = getDuration("REMBG_TIMEOUT", 120*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.KeyerTolerance, err = getFloat("KEYER_TOLERANCE", 48); err != nil {
		return Config{}, err
	}
	if cfg.PNGQuality, err = getInt("PNG_QUALITY", 90); err != nil {
		return Config{}, err
	}
	if cfg.PNGCompression, err = getInt("PNG_COMPRESSION", 6); err != nil {
		return Config{}, err
	}
	if cfg.MaxDimension, err = getInt("MAX_DIMENSION", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxPixels, err = getInt("MAX_PIXELS", 0x3FFF*0x3FFF); err != nil {
		return Config{}, err
	}
	if cfg.JanitorMaxAge, err = getDuration("JANITOR_MAX_AGE", 30*time.Minute); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid MAX_UPLOAD_BYTES: %d", c.MaxUploadBytes)
	}
	if c.PNGQuality < 1 || c.PNGQuality > 100 {
		return fmt.Errorf("invalid PNG_QUALITY: %d, want 1..100", c.PNGQuality)
	}
	if c.PNGCompression < 0 || c.PNGCompression > 9 {
		return fmt.Errorf("invalid PNG_COMPRESSION: %d, want 0..9", c.PNGCompression)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("invalid MAX_PIXELS: %d", c.MaxPixels)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("invalid MAX_DIMENSION: %d", c.MaxDimension)
	}
	switch c.RemBGBackend {
	case BackendRemBG, BackendBiRefNet, BackendKeyer:
	default:
		return fmt.Errorf("invalid REMBG_BACKEND: %q", c.RemBGBackend)
	}
	return nil
}

// Addr 监听地址
func (c Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, defaultVal int64) (int64, error) {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
