package profile

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsAreUnderProfileDir(t *testing.T) {
	name := "main"
	dir := Dir(name)

	paths := map[string]string{
		"lock":     LockPath(name),
		"cache":    CacheDBPath(name),
		"identity": IdentityPath(name),
		"log":      LogPath(name),
	}
	for label, p := range paths {
		if !strings.HasPrefix(p, dir) {
			t.Errorf("%s path %q not under profile dir %q", label, p, dir)
		}
	}
}

func TestConfigPathIsGlobal(t *testing.T) {
	if filepath.Dir(ConfigPath()) != BaseDir() {
		t.Errorf("config path %q should live directly under %q", ConfigPath(), BaseDir())
	}
}
