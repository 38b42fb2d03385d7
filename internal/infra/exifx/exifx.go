// Package exifx 是基于 goexif 的进程内 EXIF 读取器。
package exifx

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/John-Robertt/mediaport/internal/capture"
)

// DefaultMaxScanBytes 限制非 JPEG/TIFF 文件上的 APP1 扫描长度，避免把整段视频读一遍。
const DefaultMaxScanBytes = 32 << 20

// Reader 用 goexif 读取拍摄时间与 GPS；零值可用。
type Reader struct {
	MaxScanBytes int64
}

// Read 实现 capture.Reader。无 EXIF、解析失败或字段缺失时对应字段留空。
func (r Reader) Read(ctx context.Context, path string) capture.Metadata {
	if ctx.Err() != nil {
		return capture.Metadata{}
	}
	f, err := os.Open(path)
	if err != nil {
		return capture.Metadata{}
	}
	defer f.Close()

	limit := r.MaxScanBytes
	if limit <= 0 {
		limit = DefaultMaxScanBytes
	}
	// 子目录（GPS 等）解析失败时 goexif 仍返回已解析的部分。
	x, _ := exif.Decode(io.LimitReader(f, limit))
	if x == nil {
		return capture.Metadata{}
	}

	m := capture.Metadata{
		OriginalCapture: stringTag(x, exif.DateTimeOriginal),
		DateTime:        stringTag(x, exif.DateTime),
	}
	if lat, lon, err := x.LatLong(); err == nil {
		m.Latitude, m.Longitude = &lat, &lon
	}
	return m
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
