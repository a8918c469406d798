// Package janitor 定时清理上传目录中被遗留的临时文件（例如进程在处理中途退出）
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chaos-io/ultra-bg-remover/util"
)

type Janitor struct {
	dir    string
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
}

func New(dir string, maxAge time.Duration) *Janitor {
	return &Janitor{
		dir:    dir,
		maxAge: maxAge,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// Start 按 cron 表达式（支持 @every 10m）调度清理任务
func (j *Janitor) Start(spec string) error {
	if _, err := j.cron.AddFunc(spec, j.run); err != nil {
		return fmt.Errorf("schedule janitor %q: %w", spec, err)
	}
	j.cron.Start()
	slog.Info("janitor started", "dir", j.dir, "schedule", spec, "max_age", j.maxAge)
	return nil
}

// Stop 停止调度，返回的 context 在正在执行的任务结束后关闭
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

// Sweep 删除修改时间早于 maxAge 的文件，返回删除数量
func (j *Janitor) Sweep() (int, error) {
	stale, err := util.FilesOlderThan(j.dir, j.now().Add(-j.maxAge))
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", j.dir, err)
	}

	removed := 0
	for _, path := range stale {
		if err := util.RemoveFile(path); err != nil {
			slog.Warn("janitor remove failed", "path", path, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (j *Janitor) run() {
	n, err := j.Sweep()
	if err != nil {
		slog.Error("janitor sweep failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("janitor removed stale uploads", "count", n)
	}
}
