package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	buildInfo := Get()

	if buildInfo.Version == "" {
		t.Error("Expected Version to be populated")
	}
	if buildInfo.GoVersion != runtime.Version() {
		t.Errorf("Expected GoVersion '%s', got '%s'", runtime.Version(), buildInfo.GoVersion)
	}

	expectedPlatform := runtime.GOOS + "/" + runtime.GOARCH
	if buildInfo.Platform != expectedPlatform {
		t.Errorf("Expected Platform '%s', got '%s'", expectedPlatform, buildInfo.Platform)
	}
}

func TestBuildInfoString(t *testing.T) {
	tests := []struct {
		name     string
		info     BuildInfo
		expected string
	}{
		{
			name: "full build info",
			info: BuildInfo{
				Version:   "1.2.3",
				GitCommit: "abcd1234",
				BuildDate: "2026-06-15",
				GoVersion: "go1.24.4",
				Platform:  "linux/amd64",
			},
			expected: "archpub version 1.2.3 (abcd1234) built on 2026-06-15 go1.24.4 linux/amd64",
		},
		{
			name: "dev build",
			info: BuildInfo{
				Version:   "dev",
				GoVersion: "go1.24.4",
				Platform:  "darwin/arm64",
			},
			expected: "archpub version dev go1.24.4 darwin/arm64",
		},
		{
			name: "commit without date",
			info: BuildInfo{
				Version:   "v0.3.0",
				GitCommit: "ff00",
				GoVersion: "go1.24.4",
				Platform:  "linux/arm64",
			},
			expected: "archpub version v0.3.0 (ff00) go1.24.4 linux/arm64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	Version = "v9.9.9"
	if got := UserAgent(); got != "archpub/v9.9.9" {
		t.Errorf("Unexpected user agent %q", got)
	}
	if !strings.HasPrefix(UserAgent(), "archpub/") {
		t.Error("Expected archpub prefix")
	}
}
