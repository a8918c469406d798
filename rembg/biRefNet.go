package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/segmentio/ksuid"

	nhttp "github.com/chaos-io/ultra-bg-remover/util/http"
)

const (
	loadImageClass = "LoadImage"
	saveImageClass = "SaveImage"

	defaultPollInterval = 500 * time.Millisecond
)

//go:embed workflow.json
var workflowData []byte

// BiRefNetRemBG 通过 ComfyUI 运行 BiRefNet 工作流完成抠图
//
//	上传图片 → 提交 prompt → 轮询 history → 下载输出
type BiRefNetRemBG struct {
	baseURL      string
	cli          nhttp.IClient
	workflow     []byte
	pollInterval time.Duration
}

func NewBiRefNetRemBG(baseURL string, cli nhttp.IClient) *BiRefNetRemBG {
	return &BiRefNetRemBG{
		baseURL:      baseURL,
		cli:          cli,
		workflow:     workflowData,
		pollInterval: defaultPollInterval,
	}
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	uploaded, err := b.uploadImage(ctx, data)
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, uploaded)
	if err != nil {
		return nil, err
	}

	output, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	return b.view(ctx, output)
}

type comfyImage struct {
	Name      string `json:"name,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, data []byte) (*comfyImage, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// 用 ksuid 命名，避免并发请求在 ComfyUI 的 input 目录里互相覆盖
	part, err := writer.CreateFormFile("image", ksuid.New().String()+".png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	_ = writer.Close()

	resp := &comfyImage{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "/api/upload/image",
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		return nil, errors.New("upload image: empty name in response")
	}

	slog.DebugContext(ctx, "comfyui image uploaded", "name", resp.Name, "subfolder", resp.Subfolder)
	return resp, nil
}

type promptResp struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, img *comfyImage) (string, error) {
	wk := map[string]map[string]any{}
	if err := json.Unmarshal(b.workflow, &wk); err != nil {
		return "", fmt.Errorf("unmarshal workflow data: %w", err)
	}

	// 把 LoadImage 节点指向刚上传的图片
	name := img.Name
	if img.Subfolder != "" {
		name = img.Subfolder + "/" + img.Name
	}
	found := false
	for _, node := range wk {
		if node["class_type"] != loadImageClass {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}
		inputs["image"] = name
		found = true
	}
	if !found {
		return "", fmt.Errorf("workflow has no %s node", loadImageClass)
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "/api/prompt",
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       map[string]any{"prompt": wk, "client_id": ksuid.New().String()},
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("queue prompt: node errors %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("queue prompt: empty prompt id")
	}

	slog.DebugContext(ctx, "comfyui prompt queued", "prompt_id", resp.PromptID, "number", resp.Number)
	return resp.PromptID, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []comfyImage `json:"images"`
	} `json:"outputs"`
}

// waitOutput 轮询 /api/history/{prompt_id} 直到工作流完成
func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (*comfyImage, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		history := map[string]historyEntry{}
		reqParam := &nhttp.RequestParam{
			RequestURI: b.baseURL + "/api/history/" + url.PathEscape(promptID),
			Method:     http.MethodGet,
			Response:   &history,
		}
		if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return nil, fmt.Errorf("prompt %s failed", promptID)
			}
			for _, out := range entry.Outputs {
				for _, img := range out.Images {
					if img.Type == "output" {
						return &img, nil
					}
				}
			}
			if entry.Status.Completed {
				return nil, fmt.Errorf("prompt %s completed without %s output", promptID, saveImageClass)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *BiRefNetRemBG) view(ctx context.Context, img *comfyImage) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	q.Set("type", img.Type)

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + "/api/view?" + q.Encode(),
		Method:     http.MethodGet,
		Response:   &out,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("view output: %w", err)
	}
	return out, nil
}

func (b *BiRefNetRemBG) CheckHealth(ctx context.Context) error {
	err := b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.baseURL + "/api/system_stats",
		Method:     http.MethodGet,
	})
	if err != nil {
		return fmt.Errorf("comfyui unhealthy: %w", err)
	}
	return nil
}
