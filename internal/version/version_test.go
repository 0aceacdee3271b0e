package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "v1.2.3"
	if got := Get(); got != "v1.2.3" {
		t.Errorf("Get() = %q, want v1.2.3", got)
	}

	Version = ""
	if got := Get(); got == "" {
		t.Error("Get() returned empty version")
	}
}

func TestInfo(t *testing.T) {
	origV, origC := Version, Commit
	defer func() { Version, Commit = origV, origC }()

	Version, Commit = "v0.3.0", "abc1234"
	info := Info()
	if !strings.HasPrefix(info, "shipline v0.3.0 (abc1234) ") {
		t.Errorf("Info() = %q", info)
	}
}
