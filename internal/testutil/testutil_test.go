package testutil

import (
	"path/filepath"
	"testing"

	"github.com/panbanda/klone/pkg/models"
)

func TestWriteEntity(t *testing.T) {
	root := t.TempDir()
	WriteEntity(t, root, models.SubmissionRef(7), map[string]string{
		"src/Main.kt": "fun main() {}",
		"README.md":   "# hi",
	})

	got := ReadFile(t, filepath.Join(root, "submission", "7", "src", "Main.kt"))
	if got != "fun main() {}" {
		t.Errorf("ReadFile() = %q", got)
	}
	if dir := EntityDir(root, models.CourseRef(1)); dir != filepath.Join(root, "course", "1") {
		t.Errorf("EntityDir() = %q", dir)
	}
}
