package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/ultra-bg-remover/config"
	"github.com/chaos-io/ultra-bg-remover/pipeline"
	"github.com/chaos-io/ultra-bg-remover/upload"
)

const (
	Name    = "Ultra BG Remover API"
	Version = "1.0.0"

	imageField = "image"
)

// Processor 处理已落盘的上传文件
type Processor interface {
	Process(ctx context.Context, path string) (*pipeline.Result, error)
}

type Server struct {
	receiver  *upload.Receiver
	processor Processor
	engine    *gin.Engine
}

func New(cfg config.Config, processor Processor) *Server {
	s := &Server{
		receiver:  upload.NewReceiver(cfg.UploadDir, cfg.MaxUploadBytes),
		processor: processor,
		engine:    gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.Use(requestLogger(), cors(), errorHandler(), recovery())

	s.engine.GET("/", s.index)
	s.engine.GET("/health", s.health)
	s.engine.POST("/remove-background", s.receiver.Single(imageField), s.removeBackground)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "message": c.Request.Method + " " + c.Request.URL.Path})
	})
}
