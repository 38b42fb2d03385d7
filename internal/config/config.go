package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/John-Robertt/mediaport/internal/app/planner"
	"github.com/John-Robertt/mediaport/internal/classify"
	"github.com/John-Robertt/mediaport/internal/domain"
	"github.com/John-Robertt/mediaport/internal/scan"
)

const (
	// ErrCodeNotFound 表示找不到配置文件，且 CLI 也没有给齐 source/dest。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeProfileNotFound 表示指定的 profile 不存在。
	ErrCodeProfileNotFound = domain.ErrCodeProfileNotFound
)

const (
	FileName = "mediaport.json"

	DefaultConcurrency     = 1
	MaxConcurrency         = 32
	DefaultFilenameFormat  = "{date}_{time}"
	DefaultIgnoreFile      = ".mediaportignore"
	DefaultExiftoolPath    = "exiftool"
	DefaultExiftoolTimeout = 10 * time.Second
)

// 两组扩展名都未配置时使用：视频/RAW 为 primary，字幕、缩略图、XMP 与同名 JPEG 跟随。
var (
	DefaultPrimaryExtensions   = []string{".mp4", ".mov", ".insv", ".dng", ".arw", ".cr2", ".cr3", ".nef", ".raf", ".orf", ".rw2"}
	DefaultCompanionExtensions = []string{".srt", ".lrf", ".thm", ".xmp", ".wav", ".jpg", ".jpeg"}
)

// CLIArgs 是 CLI 可覆盖的入口，并保留“是否显式指定”的信息。
// 这能保证 --dry-run=false 可以覆盖 profile 中的 dry_run=true。
type CLIArgs struct {
	ConfigPath string
	Profile    string
	Source     string
	Dest       string

	DryRun    bool
	DryRunSet bool
}

// FileConfig 对应 mediaport.json 的解析结构。
type FileConfig struct {
	DefaultProfile string                   `json:"default_profile"`
	Profiles       map[string]ProfileConfig `json:"profiles"`
}

// ProfileConfig 是一个导入 profile。指针字段区分“未设置”与零值。
type ProfileConfig struct {
	SourcePath      string `json:"source_path"`
	DestinationRoot string `json:"destination_root"`

	IncludeExtensions []string `json:"include_extensions"`
	ExcludeExtensions []string `json:"exclude_extensions"`
	ExcludeFolders    []string `json:"exclude_folders"`
	ExcludePatterns   []string `json:"exclude_patterns"`
	IgnoreFile        *string  `json:"ignore_file"`

	MaintainFileRelationships *bool    `json:"maintain_file_relationships"`
	PrimaryExtensions         []string `json:"primary_extensions"`
	CompanionExtensions       []string `json:"companion_extensions"`

	TransferMode   string  `json:"transfer_mode"`
	OnCollision    string  `json:"on_collision"`
	UseExifDate    *bool   `json:"use_exif_date"`
	FilenameFormat *string `json:"filename_format"`
	CameraLabel    string  `json:"camera_label"`

	Concurrency     int    `json:"concurrency"`
	Verify          bool   `json:"verify"`
	DryRun          *bool  `json:"dry_run"`
	ExiftoolPath    string `json:"exiftool_path"`
	ExiftoolTimeout string `json:"exiftool_timeout"`
}

// EffectiveConfig 是合并、规范化并校验后的最终配置；实现层直接消费，不再做二次默认/优先级判断。
type EffectiveConfig struct {
	ConfigPath string
	Profile    string

	Source      string
	Destination string

	IncludeExtensions []string
	ExcludeExtensions []string
	ExcludeFolders    []string
	ExcludePatterns   []string
	IgnoreFile        string

	MaintainFileRelationships bool
	PrimaryExtensions         []string
	CompanionExtensions       []string

	TransferMode   domain.TransferMode
	OnCollision    domain.CollisionPolicy
	UseExifDate    bool
	FilenameFormat string
	CameraLabel    string

	Concurrency     int
	Verify          bool
	DryRun          bool
	ExiftoolPath    string
	ExiftoolTimeout time.Duration
}

// Classifier 按 primary/companion 扩展名构造分类器。
func (e EffectiveConfig) Classifier() classify.Classifier {
	return classify.New(e.PrimaryExtensions, e.CompanionExtensions)
}

// Filter 按 include/exclude 扩展名构造扫描过滤器。
func (e EffectiveConfig) Filter() classify.Filter {
	return classify.Filter{
		Include: classify.NewSet(e.IncludeExtensions),
		Exclude: classify.NewSet(e.ExcludeExtensions),
	}
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeProfileNotFound:
		return fmt.Sprintf("%s：配置文件 %q 中没有 profile：%v", e.Code, e.Path, e.Err)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，选出 profile，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) --config 指定：必须存在
// 2) 否则读取 <cwd>/mediaport.json；不存在时仅当 CLI 同时给了 --source 与 --dest 才允许继续（全部取默认值）
//
// profile 选择：--profile > default_profile > 唯一的 profile。
//
// 覆盖优先级：
// - source/dest：CLI > profile（profile 中的相对路径相对配置文件所在目录）
// - dry_run：CLI --dry-run/--dry-run=false > profile > 默认 false
// - 其他字段：仅由 profile 控制
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	explicit := strings.TrimSpace(cli.ConfigPath) != ""
	cfgPath := filepath.Join(cwdAbs, FileName)
	if explicit {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		adHoc := strings.TrimSpace(cli.Source) != "" && strings.TrimSpace(cli.Dest) != ""
		if explicit || !adHoc || strings.TrimSpace(cli.Profile) != "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	}

	name, pc, err := selectProfile(fc, cli.Profile)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeProfileNotFound, Path: cfgPath, Err: err}
	}

	eff, err := merge(cwdAbs, filepath.Dir(cfgPath), cli, pc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.Profile = name
	if exists {
		eff.ConfigPath = cfgPath
	}
	return eff, nil
}

func selectProfile(fc FileConfig, requested string) (string, ProfileConfig, error) {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = strings.TrimSpace(fc.DefaultProfile)
	}
	if name == "" {
		switch len(fc.Profiles) {
		case 0:
			return "", ProfileConfig{}, nil
		case 1:
			for n, p := range fc.Profiles {
				return n, p, nil
			}
		default:
			return "", ProfileConfig{}, fmt.Errorf("存在多个 profile，请用 --profile 或 default_profile 指定：%v", profileNames(fc))
		}
	}
	pc, ok := fc.Profiles[name]
	if !ok {
		return "", ProfileConfig{}, fmt.Errorf("%q（可选：%v）", name, profileNames(fc))
	}
	return name, pc, nil
}

func profileNames(fc FileConfig) []string {
	out := make([]string, 0, len(fc.Profiles))
	for n := range fc.Profiles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func merge(cwdAbs, cfgDir string, cli CLIArgs, pc ProfileConfig) (EffectiveConfig, error) {
	// source/dest：CLI（相对 cwd）> profile（相对配置文件目录）
	source := absCleanFrom(cfgDir, pc.SourcePath)
	if strings.TrimSpace(cli.Source) != "" {
		source = absCleanFrom(cwdAbs, cli.Source)
	}
	dest := absCleanFrom(cfgDir, pc.DestinationRoot)
	if strings.TrimSpace(cli.Dest) != "" {
		dest = absCleanFrom(cwdAbs, cli.Dest)
	}

	// dry_run：CLI > profile > 默认 false
	dryRun := false
	if cli.DryRunSet {
		dryRun = cli.DryRun
	} else if pc.DryRun != nil {
		dryRun = *pc.DryRun
	}

	concurrency := pc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	eff := EffectiveConfig{
		Source:      source,
		Destination: dest,

		IncludeExtensions: normalizeExts(pc.IncludeExtensions),
		ExcludeExtensions: normalizeExts(pc.ExcludeExtensions),
		ExcludeFolders:    append([]string(nil), pc.ExcludeFolders...),
		ExcludePatterns:   append([]string(nil), pc.ExcludePatterns...),
		IgnoreFile:        DefaultIgnoreFile,

		MaintainFileRelationships: boolOr(pc.MaintainFileRelationships, true),
		PrimaryExtensions:         normalizeExts(pc.PrimaryExtensions),
		CompanionExtensions:       normalizeExts(pc.CompanionExtensions),

		TransferMode:   domain.TransferMode(strings.ToLower(strings.TrimSpace(pc.TransferMode))),
		OnCollision:    domain.CollisionPolicy(strings.ToLower(strings.TrimSpace(pc.OnCollision))),
		UseExifDate:    boolOr(pc.UseExifDate, true),
		FilenameFormat: DefaultFilenameFormat,
		CameraLabel:    strings.TrimSpace(pc.CameraLabel),

		Concurrency:     concurrency,
		Verify:          pc.Verify,
		DryRun:          dryRun,
		ExiftoolPath:    strings.TrimSpace(pc.ExiftoolPath),
		ExiftoolTimeout: DefaultExiftoolTimeout,
	}
	if pc.IgnoreFile != nil {
		eff.IgnoreFile = strings.TrimSpace(*pc.IgnoreFile)
	}
	if pc.FilenameFormat != nil {
		eff.FilenameFormat = *pc.FilenameFormat
	}
	if eff.TransferMode == "" {
		eff.TransferMode = domain.ModeCopy
	}
	if eff.OnCollision == "" {
		eff.OnCollision = domain.CollisionRename
	}
	if eff.ExiftoolPath == "" {
		eff.ExiftoolPath = DefaultExiftoolPath
	}
	if len(eff.PrimaryExtensions) == 0 && len(eff.CompanionExtensions) == 0 {
		eff.PrimaryExtensions = append([]string(nil), DefaultPrimaryExtensions...)
		eff.CompanionExtensions = append([]string(nil), DefaultCompanionExtensions...)
	}
	// include 未配置：只导入可分类的扩展名。
	if len(eff.IncludeExtensions) == 0 {
		eff.IncludeExtensions = normalizeExts(append(append([]string(nil), eff.PrimaryExtensions...), eff.CompanionExtensions...))
	}
	if s := strings.TrimSpace(pc.ExiftoolTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return EffectiveConfig{}, fmt.Errorf("exiftool_timeout 无效：%q", s)
		}
		eff.ExiftoolTimeout = d
	}

	if err := validate(eff); err != nil {
		return EffectiveConfig{}, err
	}
	return eff, nil
}

// validate 在任何扫描开始前拒绝不合法的组合。
func validate(eff EffectiveConfig) error {
	switch eff.TransferMode {
	case domain.ModeCopy, domain.ModeMove:
	default:
		return fmt.Errorf("transfer_mode 只能是 copy 或 move，实际是 %q", eff.TransferMode)
	}
	switch eff.OnCollision {
	case domain.CollisionRename, domain.CollisionReplace:
	default:
		return fmt.Errorf("on_collision 只能是 rename 或 replace，实际是 %q", eff.OnCollision)
	}
	if err := planner.ValidateTemplate(eff.FilenameFormat); err != nil {
		return fmt.Errorf("filename_format 无效：%w", err)
	}
	if err := planner.ValidateCameraLabel(eff.CameraLabel); err != nil {
		return fmt.Errorf("camera_label 无效：%w", err)
	}
	if err := planner.ValidateBaseName(eff.FilenameFormat, eff.CameraLabel); err != nil {
		return fmt.Errorf("filename_format 无效：%w", err)
	}
	if eff.Source == "" {
		return fmt.Errorf("缺少 source_path（或 --source）")
	}
	if eff.Destination == "" {
		return fmt.Errorf("缺少 destination_root（或 --dest）")
	}
	if within(eff.Source, eff.Destination) {
		return fmt.Errorf("destination_root 不能位于 source_path 之内：%q", eff.Destination)
	}
	if eff.MaintainFileRelationships {
		if overlap := eff.Classifier().Overlap(); len(overlap) > 0 {
			return fmt.Errorf("primary_extensions 与 companion_extensions 重叠：%v", overlap)
		}
	}
	if p, ok := scan.ValidatePatterns(eff.ExcludePatterns); !ok {
		return fmt.Errorf("exclude_patterns 含非法 glob：%q", p)
	}
	if strings.ContainsAny(eff.IgnoreFile, `/\`) {
		return fmt.Errorf("ignore_file 只能是文件名：%q", eff.IgnoreFile)
	}
	return nil
}

// within 判断 p 是否等于 root 或位于 root 之下。
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func normalizeExts(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		n := classify.Normalize(e)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 为空：返回空串
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
