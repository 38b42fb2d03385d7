package classify

import (
	"sort"
	"testing"
)

func TestClassify_PrimaryCompanionNone(t *testing.T) {
	c := New([]string{"mp4", ".MOV", ".dng"}, []string{".srt", "LRF"})

	cases := map[string]Role{
		"DJI_0019.MP4": RolePrimary,
		"clip.mov":     RolePrimary,
		"IMG_1.DNG":    RolePrimary,
		"DJI_0019.SRT": RoleCompanion,
		"DJI_0019.lrf": RoleCompanion,
		"notes.txt":    RoleNone,
		"noext":        RoleNone,
	}
	for name, want := range cases {
		if got := c.Classify(name); got != want {
			t.Fatalf("%q：期望 %s，实际 %s", name, want, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{"MP4": ".mp4", ".Jpg": ".jpg", " .srt ": ".srt", "": "", ".": ""} {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q)=%q，期望 %q", in, got, want)
		}
	}
}

func TestFilter_IncludeMinusExclude(t *testing.T) {
	f := Filter{Include: NewSet([]string{".jpg", ".mp4", ".thm"}), Exclude: NewSet([]string{".thm"})}
	if !f.Matches("a.JPG") {
		t.Fatalf("a.JPG 应命中 include")
	}
	if f.Matches("a.THM") {
		t.Fatalf("exclude 应优先于 include")
	}
	if f.Matches("a.txt") || f.Matches("Makefile") {
		t.Fatalf("不在 include 的文件不应命中")
	}
}

func TestOverlap(t *testing.T) {
	c := New([]string{".mp4", ".jpg"}, []string{".jpg", ".srt"})
	got := c.Overlap()
	sort.Strings(got)
	if len(got) != 1 || got[0] != ".jpg" {
		t.Fatalf("期望重叠 [.jpg]，实际 %v", got)
	}
}
