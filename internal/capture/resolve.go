package capture

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/mediaport/internal/domain"
)

// Resolver 按固定顺序回退，给 primary 文件确定唯一的拍摄时间：
//
//  1. 进程内读取器的 DateTimeOriginal
//  2. 进程内读取器的 DateTime
//  3. 外部工具查询 DateTimeOriginal（进程内读取器对部分 RAW 容器无能为力）
//  4. 文件修改时间
//
// 第 1 至 3 级的任何失败都静默落到下一级；Resolve 永不返回错误。
type Resolver struct {
	Embedded Reader
	Tool     Reader
	Log      *zap.Logger

	// stat 可替换，便于测试 mtime 兜底。
	stat func(string) (os.FileInfo, error)
}

// stage 是回退链中的一级：返回原始日期文本与是否拿到值。
type stage struct {
	source domain.TimestampSource
	lookup func(ctx context.Context, path string) (string, bool)
}

// NewResolver 组装回退链；embedded、tool 可为 nil（跳过对应级别）。
func NewResolver(embedded, tool Reader, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{Embedded: embedded, Tool: tool, Log: log, stat: os.Stat}
}

// Resolve 返回 path 的拍摄时间。useEmbedded=false 时直接使用文件修改时间。
func (r *Resolver) Resolve(ctx context.Context, path string, useEmbedded bool) domain.ResolvedTimestamp {
	log := r.logger()
	if useEmbedded {
		for _, st := range r.stages() {
			raw, ok := st.lookup(ctx, path)
			if !ok {
				log.Debug("日期来源无结果", zap.String("stage", string(st.source)), zap.String("path", path))
				continue
			}
			t, err := ParseExifTime(raw)
			if err != nil {
				log.Debug("日期来源无法解析", zap.String("stage", string(st.source)), zap.String("path", path), zap.Error(err))
				continue
			}
			log.Debug("确定拍摄时间", zap.String("stage", string(st.source)), zap.String("path", path), zap.Time("time", t))
			return domain.ResolvedTimestamp{Time: t, Source: st.source}
		}
	}
	return domain.ResolvedTimestamp{Time: r.modTime(path), Source: domain.SourceModTime}
}

// stages 构造一次 Resolve 用的回退链；第 1、2 级共享同一次进程内读取。
func (r *Resolver) stages() []stage {
	var (
		once sync.Once
		meta Metadata
	)
	embedded := func(ctx context.Context, path string) Metadata {
		once.Do(func() {
			if r.Embedded != nil {
				meta = r.Embedded.Read(ctx, path)
			}
		})
		return meta
	}

	return []stage{
		{source: domain.SourceExifOriginal, lookup: func(ctx context.Context, path string) (string, bool) {
			m := embedded(ctx, path)
			return m.OriginalCapture, m.OriginalCapture != ""
		}},
		{source: domain.SourceExifDateTime, lookup: func(ctx context.Context, path string) (string, bool) {
			m := embedded(ctx, path)
			return m.DateTime, m.DateTime != ""
		}},
		{source: domain.SourceExifTool, lookup: func(ctx context.Context, path string) (string, bool) {
			if r.Tool == nil {
				return "", false
			}
			m := r.Tool.Read(ctx, path)
			return m.OriginalCapture, m.OriginalCapture != ""
		}},
	}
}

func (r *Resolver) modTime(path string) time.Time {
	stat := r.stat
	if stat == nil {
		stat = os.Stat
	}
	fi, err := stat(path)
	if err != nil {
		// 文件已不可访问：返回零值，后续传输会对该文件报错。
		r.logger().Warn("读取修改时间失败", zap.String("path", path), zap.Error(err))
		return time.Time{}
	}
	return fi.ModTime().UTC()
}

func (r *Resolver) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
