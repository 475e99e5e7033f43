package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileExtension(t *testing.T) {
	tests := []struct {
		name string
		file File
		want string
	}{
		{"simple", File{Name: "report.PDF"}, ".pdf"},
		{"no extension", File{Name: "README"}, ""},
		{"multiple dots", File{Name: "archive.tar.gz"}, ".gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.file.Extension())
		})
	}
}

func TestFileCanTransitionTo(t *testing.T) {
	tests := []struct {
		name  string
		state FileState
		next  FileState
		want  bool
	}{
		{"active to trashed", FileActive, FileTrashed, true},
		{"active to deleted direct", FileActive, FileDeleted, false},
		{"trashed to active", FileTrashed, FileActive, true},
		{"trashed to deleted", FileTrashed, FileDeleted, true},
		{"deleted is terminal", FileDeleted, FileActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{State: tt.state}
			assert.Equal(t, tt.want, f.CanTransitionTo(tt.next))
		})
	}
}

func TestSameExtension(t *testing.T) {
	assert.True(t, SameExtension("a.TXT", "b.txt"))
	assert.False(t, SameExtension("a.txt", "b.csv"))
}
