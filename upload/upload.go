// Package upload 负责接收 multipart 上传：校验类型、限制大小、落盘到临时目录
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/chaos-io/ultra-bg-remover/apperr"
	"github.com/chaos-io/ultra-bg-remover/util"
)

const (
	DefaultMaxBytes = 10 << 20

	contextKey = "upload.file"
	// 用于内容嗅探的头部字节数，与 mimetype 默认读取上限一致
	sniffLen = 3072
)

// File 一次请求内的上传文件，处理结束后必须 Remove
type File struct {
	OriginalName string
	Path         string
	MimeType     string
	Size         int64
}

// Remove 删除磁盘上的临时文件，文件不存在不算错误
func (f *File) Remove() error {
	return util.RemoveFile(f.Path)
}

type Receiver struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

func NewReceiver(dir string, maxBytes int64) *Receiver {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Receiver{
		dir:      dir,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Single 类似 multer 的 single(field)：在 handler 之前把文件落盘并放入 gin.Context
// 请求中没有该字段时不报错，由 handler 决定如何响应
func (r *Receiver) Single(field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := r.Receive(c.Request, field)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if f != nil {
			c.Set(contextKey, f)
		}
		c.Next()
	}
}

// FromContext 取出 Single 存入的文件
func FromContext(c *gin.Context) (*File, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	f, ok := v.(*File)
	return f, ok && f != nil
}

// Receive 流式读取 multipart，找到第一个名为 field 的文件字段并写入临时目录
// 非 multipart 请求或没有该字段时返回 nil, nil
func (r *Receiver) Receive(req *http.Request, field string) (*File, error) {
	mr, err := req.MultipartReader()
	if err != nil {
		// 非 multipart 请求视为没有文件
		return nil, nil
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnknown, "read multipart", err)
		}
		if part.FormName() != field || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		f, err := r.store(part)
		_ = part.Close()
		return f, err
	}
}

func (r *Receiver) store(part *multipart.Part) (*File, error) {
	declared := part.Header.Get("Content-Type")
	if !isImage(declared) {
		return nil, apperr.New(apperr.KindInvalidFileType, "Only images are allowed")
	}

	// 先嗅探头部，声明类型与实际内容不符时同样拒绝，此时还未落盘
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperr.Wrap(apperr.KindUnknown, "read upload", err)
	}
	head = head[:n]
	if int64(n) > r.maxBytes {
		return nil, r.tooLarge()
	}
	if detected := mimetype.Detect(head); !isImage(detected.String()) {
		return nil, apperr.New(apperr.KindInvalidFileType,
			fmt.Sprintf("Only images are allowed, content looks like %s", detected.String()))
	}

	if err := os.MkdirAll(r.dir, os.ModePerm); err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, "create upload dir", err)
	}

	original := part.FileName()
	path := filepath.Join(r.dir, r.storedName(original))
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, "create upload file", err)
	}

	// 多读 1 字节用于判断是否超限
	remaining := r.maxBytes - int64(n) + 1
	written, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), io.LimitReader(part, remaining)))
	closeErr := dst.Close()
	switch {
	case err != nil:
		_ = util.RemoveFile(path)
		return nil, apperr.Wrap(apperr.KindUnknown, "write upload file", err)
	case closeErr != nil:
		_ = util.RemoveFile(path)
		return nil, apperr.Wrap(apperr.KindUnknown, "close upload file", closeErr)
	case written > r.maxBytes:
		_ = util.RemoveFile(path)
		return nil, r.tooLarge()
	}

	return &File{
		OriginalName: original,
		Path:         path,
		MimeType:     declared,
		Size:         written,
	}, nil
}

// storedName 时间戳前缀保证唯一（同一毫秒内同名上传会冲突，已知风险）
func (r *Receiver) storedName(original string) string {
	base := filepath.Base(original)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "upload"
	}
	return strconv.FormatInt(r.now().UnixMilli(), 10) + "-" + base
}

func (r *Receiver) tooLarge() error {
	return apperr.New(apperr.KindPayloadTooLarge, fmt.Sprintf("File too large, limit is %d bytes", r.maxBytes))
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
