package version

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if BuildTime == "" || GitCommit == "" {
		t.Error("build info should be initialized")
	}
}

func TestStrings(t *testing.T) {
	if !strings.HasPrefix(String(), "relpub "+Version) {
		t.Errorf("String() = %q", String())
	}
	if UserAgent() != "relpub/"+Version {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
