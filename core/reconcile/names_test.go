package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflictName(t *testing.T) {
	tests := []struct {
		name  string
		isDir bool
		want  string
	}{
		{name: "a.txt", want: "a (Conflicting copy).txt"},
		{name: "archive.tar.gz", want: "archive.tar (Conflicting copy).gz"},
		{name: ".bashrc", want: ".bashrc (Conflicting copy)"},
		{name: "README", want: "README (Conflicting copy)"},
		{name: "photos.v2", isDir: true, want: "photos.v2 (Conflicting copy)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conflictName(tt.name, tt.isDir))
		})
	}
}

func TestFreeConflictName_SkipsTakenNames(t *testing.T) {
	e, _ := newTestEngine(nil)
	seed(t, e, testRemote, file("1", "docs", "a (Conflicting copy).txt"))
	seed(t, e, local, file("1", "docs", "A (conflicting copy) 2.txt"))

	got := e.freeConflictName([]string{"docs"}, "a.txt", false)

	assert.Equal(t, "a (Conflicting copy) 3.txt", got)
}

func TestStoragePath_FallsBackToOtherNames(t *testing.T) {
	e, _ := newTestEngine(nil)
	seed(t, e, local, file("1", "Docs", "Report.txt"))
	seed(t, e, testRemote, dir("DOCS"))

	p := []string{"docs", "report.txt"}

	assert.Equal(t, []string{"DOCS", "Report.txt"}, e.storagePath(p, testRemote, local))
	assert.Equal(t, []string{"DOCS", "report.txt"}, e.storagePath(p, testRemote, ""))
	assert.Equal(t, []string{"Docs", "Report.txt"}, e.storagePath(p, local, ""))
}
