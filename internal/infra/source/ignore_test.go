package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreFilter_GitignorePatterns(t *testing.T) {
	repo := t.TempDir()
	gitignore := "# コメント行\nsecret/\n*.draft.md\n\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".gitignore"), []byte(gitignore), 0o644))

	f, err := newIgnoreFilter(repo)
	require.NoError(t, err)

	assert.True(t, f.ShouldIgnore("secret/plan.md"))
	assert.True(t, f.ShouldIgnore("notes.draft.md"))
	assert.False(t, f.ShouldIgnore("docs/guide.md"))
}

func TestIgnoreFilter_DefaultPatternsAlwaysApply(t *testing.T) {
	f, err := newIgnoreFilter(t.TempDir())
	require.NoError(t, err)

	assert.True(t, f.ShouldIgnore("node_modules/lib/index.js"))
	assert.True(t, f.ShouldIgnore(".env"))
	assert.True(t, f.ShouldIgnore("server.key"))
	assert.False(t, f.ShouldIgnore("README.md"))
	assert.False(t, f.ShouldIgnore("docs/handbook.txt"))
}

func TestIgnoreFilter_NilFilterIgnoresNothing(t *testing.T) {
	var f *ignoreFilter
	assert.False(t, f.ShouldIgnore("anything.md"))
}

func TestRepoDirName(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"HTTPS形式", "https://github.com/user/repo.git", "github.com/user/repo", false},
		{"SCP形式", "git@github.com:user/repo.git", "github.com/user/repo", false},
		{"SSH形式", "ssh://git@gitlab.example.com/group/proj.git", "gitlab.example.com/group/proj", false},
		{"拡張子なし", "https://github.com/user/repo", "github.com/user/repo", false},
		{"ホストなし", "./local/path", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repoDirName(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
