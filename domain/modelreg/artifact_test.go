package modelreg

import "testing"

func TestOrigin_Values(t *testing.T) {
	origins := []Origin{OriginBase, OriginFineTuned, OriginBackup}
	seen := make(map[Origin]bool)
	for _, o := range origins {
		if seen[o] {
			t.Errorf("duplicate origin value %q", o)
		}
		seen[o] = true
	}
}

func TestArtifact_ZeroValue(t *testing.T) {
	var a Artifact
	if a.Version != "" {
		t.Error("zero-value Artifact should have an empty version")
	}
}
