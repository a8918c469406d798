package rembg

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	nhttp "github.com/chaos-io/ultra-bg-remover/util/http"
)

// ServerRemBG 调用 rembg 服务（rembg s）的 /api/remove 接口
type ServerRemBG struct {
	baseURL string
	model   string
	cli     nhttp.IClient
}

func NewServerRemBG(baseURL, model string, cli nhttp.IClient) *ServerRemBG {
	return &ServerRemBG{
		baseURL: baseURL,
		model:   model,
		cli:     cli,
	}
}

/*
	curl -X POST "$REMBG_URL/api/remove" \
	  -F "file=@my_image.jpg" \
	  -F "model=u2net" -o out.png
*/
func (s *ServerRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if s.model != "" {
		_ = writer.WriteField("model", s.model)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + "/api/remove",
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &out,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("rembg remove: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rembg remove: empty response")
	}
	return out, nil
}

// CheckHealth rembg 基于 FastAPI，/docs 可用即认为服务在线
func (s *ServerRemBG) CheckHealth(ctx context.Context) error {
	err := s.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: s.baseURL + "/docs",
		Method:     http.MethodGet,
	})
	if err != nil {
		return fmt.Errorf("rembg server unhealthy: %w", err)
	}
	return nil
}
