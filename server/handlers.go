package server

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/ultra-bg-remover/apperr"
	"github.com/chaos-io/ultra-bg-remover/logging"
	"github.com/chaos-io/ultra-bg-remover/upload"
)

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    Name,
		"version": Version,
		"status":  "running",
		"endpoints": gin.H{
			"health":           "GET /health",
			"removeBackground": `POST /remove-background (multipart/form-data with "image" field)`,
		},
		"message": "API is working! Use POST /remove-background to process images.",
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": Name + " is running"})
}

func (s *Server) removeBackground(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.FromContext(ctx)

	f, ok := upload.FromContext(c)
	if !ok {
		abortWithError(c, apperr.New(apperr.KindMissingFile, fmt.Sprintf("multipart field %q is required", imageField)))
		return
	}
	// 无论成功失败都删除临时文件，删除失败只影响磁盘卫生，不影响响应
	defer func() {
		if err := f.Remove(); err != nil {
			logger.Debug("remove upload failed", "path", f.Path, "err", err)
		}
	}()

	logger.Info("Processing image", "file", filepath.Base(f.Path), "mime", f.MimeType, "bytes", f.Size)

	res, err := s.processor.Process(ctx, f.Path)
	if err != nil {
		logger.Error("Error removing background", "err", err)
		abortWithError(c, err)
		return
	}

	logger.Info(fmt.Sprintf("Background removed successfully! Size: %.2fKB", float64(res.Size())/1024),
		"width", res.Width, "height", res.Height)
	c.JSON(http.StatusOK, newRemoveResponse(res))
}
