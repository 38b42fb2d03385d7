package domain

// TransferMode 决定传输后是否保留源文件。
type TransferMode string

const (
	ModeCopy TransferMode = "copy"
	ModeMove TransferMode = "move"
)

// CollisionPolicy 决定目标已存在同名文件时的处理方式。
type CollisionPolicy string

const (
	CollisionRename  CollisionPolicy = "rename"
	CollisionReplace CollisionPolicy = "replace"
)

// TransferResult 记录单个文件的传输结果；创建后不再修改。
type TransferResult struct {
	SourcePath  string
	TargetPath  string
	IsCompanion bool
}
