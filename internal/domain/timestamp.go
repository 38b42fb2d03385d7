package domain

import "time"

// TimestampSource 标记拍摄时间来自哪一级回退。
type TimestampSource string

const (
	SourceExifOriginal TimestampSource = "exif_original"
	SourceExifDateTime TimestampSource = "exif_datetime"
	SourceExifTool     TimestampSource = "exiftool"
	SourceModTime      TimestampSource = "mtime"
)

// ResolvedTimestamp 是一个组唯一的拍摄时间（来自 primary 文件）。
// 只取第一个成功的来源，不做任何合并或平均。
type ResolvedTimestamp struct {
	Time   time.Time
	Source TimestampSource
}
