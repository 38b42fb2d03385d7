package domain

import "time"

// MediaFile 描述一次扫描得到的候选文件（只做 stat，不读文件内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - Ext 保留原始大小写（命名阶段需要原样拼回去）；分类时再统一转小写
type MediaFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".MP4"
	Size    int64
	ModTime time.Time
}
