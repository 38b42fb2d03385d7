package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusPlanned   = "planned"
	StatusFailed    = "failed"
)

const (
	FileStatusPlanned     = "planned"
	FileStatusTransferred = "transferred"
	FileStatusFailed      = "failed"
	FileStatusPending     = "pending"
)

const (
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeProfileNotFound = "profile_not_found"
	ErrCodeScanFailed      = "scan_failed"
	ErrCodeCollision       = "collision_failed"
	ErrCodeTransferFailed  = "transfer_failed"
	ErrCodeTargetConflict  = "target_conflict"
	ErrCodeVerifyFailed    = "verify_failed"
)

// RunReport 是对外稳定输出（last-import.json / stdout JSON）的结构。
type RunReport struct {
	SessionID   string `json:"session_id"`
	Profile     string `json:"profile"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	DryRun      bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []GroupResult `json:"items"`
}

type ReportSummary struct {
	Groups           int   `json:"groups"`
	GroupsProcessed  int   `json:"groups_processed"`
	GroupsFailed     int   `json:"groups_failed"`
	FilesTransferred int   `json:"files_transferred"`
	FilesFailed      int   `json:"files_failed"`
	Bytes            int64 `json:"bytes"`
}

// GroupResult 是一个 FileGroup 的处理结果。
type GroupResult struct {
	Primary         string          `json:"primary"`
	Timestamp       time.Time       `json:"timestamp"`
	TimestampSource TimestampSource `json:"timestamp_source"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Files []FileResult `json:"files"`
}

type FileResult struct {
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Companion bool   `json:"companion"`
	Status    string `json:"status"`
	Size      int64  `json:"size"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 primary 字典序；primary=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Primary
		b := r.Items[j].Primary
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		s.Groups++
		switch it.Status {
		case StatusProcessed, StatusPlanned:
			s.GroupsProcessed++
		case StatusFailed:
			s.GroupsFailed++
		}
		for _, f := range it.Files {
			switch f.Status {
			case FileStatusTransferred:
				s.FilesTransferred++
				s.Bytes += f.Size
			case FileStatusFailed:
				s.FilesFailed++
			}
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
