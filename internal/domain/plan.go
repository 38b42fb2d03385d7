package domain

import "path/filepath"

// TargetPlan 是一个组共享的落盘规划：目标目录 + 不含扩展名的基础文件名。
//
// 每个组只计算一次，然后对组内每个文件按各自扩展名复用，
// 保证 companion 与 primary 的日期/时间/机位标识完全一致。
type TargetPlan struct {
	Dir      string
	BaseName string
}

// NameFor 返回 src 在该规划下的目标文件名（保留 src 扩展名的原始大小写）。
func (p TargetPlan) NameFor(src string) string {
	return p.BaseName + filepath.Ext(src)
}
