package run

import (
	"time"

	"github.com/John-Robertt/mediaport/internal/config"
	"github.com/John-Robertt/mediaport/internal/domain"
)

// Observer 用于把“运行进度/阶段/组结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用。
	// "exec" 阶段在处理开始前发出，fields 含 workers、total_groups 与 total_bytes（组内文件总字节数）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnGroupDone 在某个组处理完成时调用。
	OnGroupDone(idx, total int, res domain.GroupResult, dur time.Duration)
}
