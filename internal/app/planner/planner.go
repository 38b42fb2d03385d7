package planner

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/mediaport/internal/domain"
)

const (
	DateLayout = "2006-01-02"
	// TimeLayout 不含冒号：冒号在部分文件系统上非法。
	TimeLayout = "15-04-05"

	PlaceholderDate   = "{date}"
	PlaceholderTime   = "{time}"
	PlaceholderCamera = "{camera}"
)

var placeholderRE = regexp.MustCompile(`\{[^{}]*\}`)

// Plan 计算一组文件共享的目标位置：destRoot/<ISO 日期>/ 与展开后的基础文件名（不含扩展名）。
//
// 同一时刻总是得到同样的结果；目录只取决于日期，与 camera 和扩展名无关。
func Plan(ts time.Time, camera, destRoot, tmpl string) domain.TargetPlan {
	t := ts.UTC()
	base := strings.NewReplacer(
		PlaceholderDate, t.Format(DateLayout),
		PlaceholderTime, t.Format(TimeLayout),
		PlaceholderCamera, camera,
	).Replace(tmpl)
	return domain.TargetPlan{
		Dir:      filepath.Join(destRoot, t.Format(DateLayout)),
		BaseName: base,
	}
}

// ValidateTemplate 在扫描前检查文件名模板：非空、不含路径分隔符、只使用已知占位符。
func ValidateTemplate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("文件名模板为空")
	}
	if strings.ContainsAny(tmpl, `/\`) {
		return fmt.Errorf("文件名模板不能包含路径分隔符：%q", tmpl)
	}
	for _, p := range placeholderRE.FindAllString(tmpl, -1) {
		switch p {
		case PlaceholderDate, PlaceholderTime, PlaceholderCamera:
		default:
			return fmt.Errorf("文件名模板包含未知占位符 %s：%q", p, tmpl)
		}
	}
	return nil
}

// ValidateBaseName 用示例时间与实际 camera 标签展开模板，拒绝空白或以 '.' 开头的基础文件名。
func ValidateBaseName(tmpl, camera string) error {
	sample := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	base := strings.TrimSpace(Plan(sample, camera, "", tmpl).BaseName)
	if base == "" {
		return fmt.Errorf("文件名模板展开后为空：%q（camera=%q）", tmpl, camera)
	}
	if strings.HasPrefix(base, ".") {
		return fmt.Errorf("文件名模板展开后以 '.' 开头：%q", base)
	}
	return nil
}

// ValidateCameraLabel 拒绝会改变目录层级的 camera 标签。
func ValidateCameraLabel(label string) error {
	if strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("camera 标签不能包含路径分隔符：%q", label)
	}
	if label == "." || label == ".." {
		return fmt.Errorf("非法 camera 标签：%q", label)
	}
	return nil
}
