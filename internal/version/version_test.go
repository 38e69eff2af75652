package version

import (
	"runtime/debug"
	"testing"
)

func TestFill(t *testing.T) {
	stamped := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "false"},
		},
	}

	tests := []struct {
		name string
		in   Info
		bi   *debug.BuildInfo
		want Info
	}{
		{
			name: "unset values come from build info",
			in:   Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
			bi:   stamped,
			want: Info{Version: "v0.3.1", Commit: "0123456", BuildTime: "2026-10-01T12:00:00Z"},
		},
		{
			name: "ldflags win",
			in:   Info{Version: "v1.0.0", Commit: "abc1234", BuildTime: "yesterday"},
			bi:   stamped,
			want: Info{Version: "v1.0.0", Commit: "abc1234", BuildTime: "yesterday"},
		},
		{
			name: "devel module keeps dev",
			in:   Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
			bi:   &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
		},
		{
			name: "modified tree is marked dirty",
			in:   Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"},
			bi: &debug.BuildInfo{Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc"},
				{Key: "vcs.modified", Value: "true"},
			}},
			want: Info{Version: "dev", Commit: "abc-dirty", BuildTime: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fill(tt.in, tt.bi); got != tt.want {
				t.Errorf("fill() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	i := Info{Version: "v1", Commit: "c", BuildTime: "t", GoVersion: "go1.24.7"}
	if got, want := i.String(), "v1 (c) built t with go1.24.7"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
