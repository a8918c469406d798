package rembg

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nhttp "github.com/chaos-io/ultra-bg-remover/util/http"
)

// fakeComfyUI 模拟 ComfyUI 的 upload / prompt / history / view 接口
type fakeComfyUI struct {
	t          *testing.T
	input      []byte
	output     []byte
	pendingFor int32 // history 前几次返回空
	failPrompt bool
	statusStr  string

	historyCalls atomic.Int32
	loadedImage  atomic.Value
}

func (f *fakeComfyUI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload/image", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		if !assert.NoError(f.t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got, _ := io.ReadAll(file)
		assert.Equal(f.t, f.input, got)
		assert.Equal(f.t, "input", r.FormValue("type"))
		_ = json.NewEncoder(w).Encode(map[string]string{"name": header.Filename, "subfolder": "", "type": "input"})
	})
	mux.HandleFunc("/api/prompt", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt   map[string]map[string]any `json:"prompt"`
			ClientID string                    `json:"client_id"`
		}
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(f.t, req.ClientID)
		for _, node := range req.Prompt {
			if node["class_type"] == loadImageClass {
				f.loadedImage.Store(node["inputs"].(map[string]any)["image"])
			}
		}
		if f.failPrompt {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"prompt_id":   "",
				"node_errors": map[string]any{"2": "missing model"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": "p-1", "number": 1, "node_errors": map[string]any{}})
	})
	mux.HandleFunc("/api/history/p-1", func(w http.ResponseWriter, r *http.Request) {
		if f.historyCalls.Add(1) <= f.pendingFor {
			_, _ = w.Write([]byte("{}"))
			return
		}
		status := f.statusStr
		if status == "" {
			status = "success"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"p-1": map[string]any{
				"status": map[string]any{"status_str": status, "completed": true},
				"outputs": map[string]any{
					"3": map[string]any{
						"images": []map[string]string{{"filename": "rembg_00001_.png", "subfolder": "", "type": "output"}},
					},
				},
			},
		})
	})
	mux.HandleFunc("/api/view", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "rembg_00001_.png", r.URL.Query().Get("filename"))
		assert.Equal(f.t, "output", r.URL.Query().Get("type"))
		_, _ = w.Write(f.output)
	})
	mux.HandleFunc("/api/system_stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"system":{}}`))
	})
	return mux
}

func newTestBiRefNet(url string) *BiRefNetRemBG {
	b := NewBiRefNetRemBG(url, nhttp.NewHTTPClient())
	b.pollInterval = 10 * time.Millisecond
	return b
}

func TestBiRefNetRemBG_Remove(t *testing.T) {
	t.Parallel()

	fake := &fakeComfyUI{t: t, input: []byte("raw"), output: []byte("\x89PNG output"), pendingFor: 2}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	out, err := newTestBiRefNet(server.URL).Remove(context.Background(), fake.input)
	require.NoError(t, err)
	assert.Equal(t, fake.output, out)
	assert.Equal(t, int32(3), fake.historyCalls.Load())

	// LoadImage 节点被替换为上传后的文件名
	loaded, _ := fake.loadedImage.Load().(string)
	assert.NotEqual(t, "MyImage.png", loaded)
	assert.Contains(t, loaded, ".png")
}

func TestBiRefNetRemBG_RemoveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fake    *fakeComfyUI
		wantErr string
	}{
		{
			name:    "节点报错",
			fake:    &fakeComfyUI{failPrompt: true},
			wantErr: "node errors",
		},
		{
			name:    "工作流执行失败",
			fake:    &fakeComfyUI{statusStr: "error"},
			wantErr: "prompt p-1 failed",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.fake.t = t
			tt.fake.input = []byte("raw")
			server := httptest.NewServer(tt.fake.handler())
			defer server.Close()

			_, err := newTestBiRefNet(server.URL).Remove(context.Background(), tt.fake.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBiRefNetRemBG_RemoveContextCanceled(t *testing.T) {
	t.Parallel()

	// history 一直没有结果
	fake := &fakeComfyUI{t: t, input: []byte("raw"), pendingFor: 1 << 30}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := newTestBiRefNet(server.URL).Remove(ctx, fake.input)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBiRefNetRemBG_CheckHealth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer((&fakeComfyUI{t: t}).handler())
	defer server.Close()

	assert.NoError(t, CheckHealth(context.Background(), newTestBiRefNet(server.URL)))
}
