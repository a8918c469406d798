package server

import (
	"encoding/base64"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/ultra-bg-remover/apperr"
	"github.com/chaos-io/ultra-bg-remover/pipeline"
)

type removeResponse struct {
	Success  bool   `json:"success"`
	Image    string `json:"image"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func newRemoveResponse(res *pipeline.Result) removeResponse {
	return removeResponse{
		Success:  true,
		Image:    base64.StdEncoding.EncodeToString(res.Data),
		MimeType: res.MimeType,
		Size:     res.Size(),
		Width:    res.Width,
		Height:   res.Height,
	}
}

type errorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Code    apperr.Kind `json:"code"`
	Message string      `json:"message"`
}

func newErrorResponse(err error) errorResponse {
	kind := apperr.KindOf(err)
	return errorResponse{
		Success: false,
		Error:   summary(kind),
		Code:    kind,
		Message: err.Error(),
	}
}

func summary(kind apperr.Kind) string {
	switch kind {
	case apperr.KindMissingFile:
		return "No image file uploaded"
	case apperr.KindProcessing, apperr.KindEncoding:
		return "Failed to remove background"
	default:
		return "Internal server error"
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.Status(err), newErrorResponse(err))
}
