package capture

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Metadata 是元数据读取器的 best-effort 结果；读取失败时各字段为空。
//
// 日期字段保留原始文本（EXIF 形如 "2025:07:06 14:12:54"），由 ParseExifTime 统一解析。
type Metadata struct {
	OriginalCapture string
	DateTime        string
	Latitude        *float64
	Longitude       *float64
}

// Reader 是元数据来源（进程内 EXIF 解析或外部工具子进程）的统一接口。
// 约束：失败时返回空 Metadata，而不是报错。
type Reader interface {
	Read(ctx context.Context, path string) Metadata
}

// ReaderFunc 让普通函数满足 Reader（主要给测试与组合使用）。
type ReaderFunc func(ctx context.Context, path string) Metadata

func (f ReaderFunc) Read(ctx context.Context, path string) Metadata { return f(ctx, path) }

const exifLayout = "2006-01-02 15:04:05"

// ParseExifTime 解析 "YYYY:MM:DD HH:MM:SS"：先把日期部分的前两个冒号换成 '-'，再按标准格式解析。
//
// 只取前 19 个字符（墙上时间），忽略亚秒与时区后缀；结果按 UTC 存储。
func ParseExifTime(raw string) (time.Time, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "\x00")
	if len(s) < len(exifLayout) {
		return time.Time{}, errors.New("日期文本过短：" + s)
	}
	s = strings.Replace(s[:len(exifLayout)], ":", "-", 2)
	return time.Parse(exifLayout, s)
}
