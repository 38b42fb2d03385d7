// Package mountwait 等待一个尚不存在的路径出现（例如存储卡挂载）。
package mountwait

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PollInterval 是 fsnotify 之外的兜底轮询间隔：部分平台挂载卷时不会在父目录上产生事件。
var PollInterval = 2 * time.Second

// WaitForPath 阻塞直到 path 存在或 ctx 结束。
//
// 监听 path 最近的已存在祖先目录；每次事件或轮询都重新检查 path，并在祖先变化时切换监听目标。
func WaitForPath(ctx context.Context, path string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	path = filepath.Clean(path)
	if exists(path) {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := ""
	rewatch := func() {
		anc := nearestExisting(path)
		if anc == watched {
			return
		}
		if watched != "" {
			_ = w.Remove(watched)
		}
		if err := w.Add(anc); err != nil {
			log.Warn("无法监听目录，仅依赖轮询", zap.String("dir", anc), zap.Error(err))
			watched = ""
			return
		}
		watched = anc
		log.Debug("监听目录", zap.String("dir", anc))
	}
	rewatch()
	log.Info("等待源路径出现", zap.String("path", path))

	tick := time.NewTicker(PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("目录监听已关闭")
			}
			log.Debug("目录事件", zap.String("name", ev.Name), zap.String("op", ev.Op.String()))
		case err, ok := <-w.Errors:
			if ok {
				log.Warn("监听出错", zap.Error(err))
			}
		case <-tick.C:
		}
		if exists(path) {
			log.Info("源路径已出现", zap.String("path", path))
			return nil
		}
		rewatch()
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func nearestExisting(p string) string {
	for {
		parent := filepath.Dir(p)
		if exists(parent) || parent == p {
			return parent
		}
		p = parent
	}
}
