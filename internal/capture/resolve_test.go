package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/John-Robertt/mediaport/internal/domain"
)

func writeWithMtime(t *testing.T, dir, name string, mt time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(p, mt, mt); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	return p
}

func fixed(m Metadata) Reader {
	return ReaderFunc(func(context.Context, string) Metadata { return m })
}

func TestParseExifTime(t *testing.T) {
	got, err := ParseExifTime("2025:07:06 14:12:54")
	if err != nil {
		t.Fatalf("ParseExifTime: %v", err)
	}
	want := time.Date(2025, 7, 6, 14, 12, 54, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("got %v, want %v", got, want)
	}

	// 时区与亚秒后缀只影响解析长度，不做换算。
	got, err = ParseExifTime("2025:07:06 14:12:54+08:00\x00")
	if err != nil || !got.Equal(want) {
		t.Fatalf("with suffix: got %v err=%v", got, err)
	}

	for _, bad := range []string{"", "2025:07:06", "0000:00:00 00:00:00", "not a date at all!!"} {
		if _, err := ParseExifTime(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestResolve_FallbackOrder(t *testing.T) {
	dir := t.TempDir()
	mt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := writeWithMtime(t, dir, "a.jpg", mt)
	ctx := context.Background()

	toolHit := fixed(Metadata{OriginalCapture: "2023:03:03 03:03:03"})

	cases := []struct {
		name     string
		embedded Reader
		tool     Reader
		wantSrc  domain.TimestampSource
		want     time.Time
	}{
		{
			name:     "original wins",
			embedded: fixed(Metadata{OriginalCapture: "2025:07:06 14:12:54", DateTime: "2020:01:01 00:00:00"}),
			tool:     toolHit,
			wantSrc:  domain.SourceExifOriginal,
			want:     time.Date(2025, 7, 6, 14, 12, 54, 0, time.UTC),
		},
		{
			name:     "datetime when original missing",
			embedded: fixed(Metadata{DateTime: "2020:01:01 10:00:00"}),
			tool:     toolHit,
			wantSrc:  domain.SourceExifDateTime,
			want:     time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "unparseable embedded falls to tool",
			embedded: fixed(Metadata{OriginalCapture: "garbage", DateTime: "0000:00:00 00:00:00"}),
			tool:     toolHit,
			wantSrc:  domain.SourceExifTool,
			want:     time.Date(2023, 3, 3, 3, 3, 3, 0, time.UTC),
		},
		{
			name:     "mtime when nothing else",
			embedded: fixed(Metadata{}),
			tool:     fixed(Metadata{}),
			wantSrc:  domain.SourceModTime,
			want:     mt,
		},
		{
			name:    "nil readers",
			wantSrc: domain.SourceModTime,
			want:    mt,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.embedded, tc.tool, nil)
			got := r.Resolve(ctx, p, true)
			if got.Source != tc.wantSrc || !got.Time.Equal(tc.want) {
				t.Fatalf("got %+v, want %s %v", got, tc.wantSrc, tc.want)
			}
		})
	}
}

func TestResolve_EmbeddedDisabledUsesMtime(t *testing.T) {
	dir := t.TempDir()
	mt := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	p := writeWithMtime(t, dir, "a.mp4", mt)

	called := false
	spy := ReaderFunc(func(context.Context, string) Metadata {
		called = true
		return Metadata{OriginalCapture: "2025:07:06 14:12:54"}
	})
	got := NewResolver(spy, spy, nil).Resolve(context.Background(), p, false)
	if got.Source != domain.SourceModTime || !got.Time.Equal(mt) {
		t.Fatalf("got %+v", got)
	}
	if called {
		t.Fatalf("readers must not be consulted when embedded dates are disabled")
	}
}

func TestResolve_EmbeddedReadOncePerCall(t *testing.T) {
	calls := 0
	emb := ReaderFunc(func(context.Context, string) Metadata {
		calls++
		return Metadata{DateTime: "2020:01:01 10:00:00"}
	})
	p := writeWithMtime(t, t.TempDir(), "a.jpg", time.Now())
	NewResolver(emb, nil, nil).Resolve(context.Background(), p, true)
	if calls != 1 {
		t.Fatalf("embedded reader calls=%d, want 1", calls)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	p := writeWithMtime(t, t.TempDir(), "a.jpg", time.Date(2022, 2, 2, 2, 2, 2, 0, time.UTC))
	r := NewResolver(fixed(Metadata{}), nil, nil)
	a := r.Resolve(context.Background(), p, true)
	b := r.Resolve(context.Background(), p, true)
	if a != b {
		t.Fatalf("not idempotent: %+v vs %+v", a, b)
	}
}

func TestResolve_StatFailureLogsAndReturnsZero(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(nil, nil, zap.New(core))
	r.stat = func(string) (os.FileInfo, error) { return nil, errors.New("gone") }

	got := r.Resolve(context.Background(), "/nope", true)
	if got.Source != domain.SourceModTime || !got.Time.IsZero() {
		t.Fatalf("got %+v", got)
	}
	if logs.FilterMessage("读取修改时间失败").Len() != 1 {
		t.Fatalf("expected one warn entry, got %d", logs.Len())
	}
}
