package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFillFromBuildInfo(t *testing.T) {
	tests := []struct {
		name        string
		info        *debug.BuildInfo
		wantVersion string
		wantCommit  string
	}{
		{
			name: "tagged module",
			info: &debug.BuildInfo{
				Main:     debug.Module{Version: "v0.3.0"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
			},
			wantVersion: "v0.3.0",
			wantCommit:  "0123456",
		},
		{
			name: "dirty checkout",
			info: &debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abcdef1234"},
					{Key: "vcs.modified", Value: "true"},
					{Key: "vcs.time", Value: "2025-03-04T05:06:07Z"},
				},
			},
			wantVersion: "dev-20250304",
			wantCommit:  "abcdef1-dirty",
		},
		{
			name:        "no vcs information",
			info:        &debug.BuildInfo{},
			wantVersion: "",
			wantCommit:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldVersion, oldCommit := Version, Commit
			t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

			Version, Commit = "", ""
			fillFromBuildInfo(tt.info)

			if Version != tt.wantVersion {
				t.Errorf("Version = %v, want %v", Version, tt.wantVersion)
			}
			if Commit != tt.wantCommit {
				t.Errorf("Commit = %v, want %v", Commit, tt.wantCommit)
			}
		})
	}
}

func TestFull(t *testing.T) {
	if got := Full(); !strings.Contains(got, Version) || !strings.Contains(got, "commit: "+Commit) {
		t.Errorf("Full() = %v", got)
	}
}
