package domain

// FileGroup 是一次拍摄时刻对应的文件集合：一个 primary + 零或多个 companion。
//
// 不变量：Files = [Primary] ++ Companions。
// 同一次扫描内创建一次，之后只读；由 run 层消费且只消费一次。
type FileGroup struct {
	Files      []string
	Primary    string
	Companions []string
}

// NewFileGroup 按不变量组装 FileGroup（会复制 companions，避免与调用方共享底层数组）。
func NewFileGroup(primary string, companions ...string) FileGroup {
	files := make([]string, 0, 1+len(companions))
	files = append(files, primary)
	files = append(files, companions...)

	var comp []string
	if len(companions) > 0 {
		comp = append([]string(nil), companions...)
	}
	return FileGroup{
		Files:      files,
		Primary:    primary,
		Companions: comp,
	}
}

// IsCompanion 判断 path 是否属于该组的 companion 列表。
func (g FileGroup) IsCompanion(path string) bool {
	for _, c := range g.Companions {
		if c == path {
			return true
		}
	}
	return false
}
