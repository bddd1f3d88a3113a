package version

import (
	"runtime"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			"clean build",
			Info{Version: "1.2.3", Commit: "abc1234", Date: "2024-01-01T00:00:00Z"},
			"1.2.3 (abc1234) built 2024-01-01T00:00:00Z",
		},
		{
			"dirty build",
			Info{Version: "1.2.3", Commit: "abc1234", Date: "2024-01-01T00:00:00Z", Dirty: true},
			"1.2.3 (abc1234-dirty) built 2024-01-01T00:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfoShort(t *testing.T) {
	if got := (Info{Version: "1.2.3"}).Short(); got != "1.2.3" {
		t.Errorf("Short() = %q, want 1.2.3", got)
	}
	if got := (Info{Version: "1.2.3", Dirty: true}).Short(); got != "1.2.3-dirty" {
		t.Errorf("Short() = %q, want 1.2.3-dirty", got)
	}
}
