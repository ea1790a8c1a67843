package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bridgeerrors "github.com/uber/lsp-mcp/src/lspmcp/internal/errors"
	"go.lsp.dev/uri"
)

func TestRelativePath(t *testing.T) {
	p := Project{Root: "/home/user/repo"}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "nested file", path: "/home/user/repo/src/lib.rs", want: "src/lib.rs"},
		{name: "root itself", path: "/home/user/repo", want: ""},
		{name: "uncleaned", path: "/home/user/repo/src/../Cargo.toml", want: "Cargo.toml"},
		{name: "sibling with shared prefix", path: "/home/user/repo2/lib.rs", wantErr: true},
		{name: "parent", path: "/home/user", wantErr: true},
		{name: "elsewhere", path: "/tmp/x.rs", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.RelativePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, bridgeerrors.IsOutsideProject(err))
				assert.False(t, p.Contains(tt.path))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, p.Contains(tt.path))
		})
	}
}

func TestProjectPaths(t *testing.T) {
	p := Project{Root: "/home/user/repo"}
	assert.Equal(t, uri.URI("file:///home/user/repo"), p.URI())
	assert.Equal(t, "repo", p.Name())
	assert.Equal(t, "/home/user/repo/src/lib.rs", p.AbsolutePath("src/lib.rs"))
	assert.Equal(t, "/tmp/x.rs", p.AbsolutePath("/tmp/./x.rs"))
}

func TestLanguageIDs(t *testing.T) {
	ids := LanguageIDs{".rs": "rust", ".go": "go"}
	assert.EqualValues(t, "rust", ids.For("/a/b/LIB.RS"))
	assert.EqualValues(t, "go", ids.For("main.go"))
	assert.EqualValues(t, "plaintext", ids.For("README"))
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", "b", ""}, SplitLines("a\r\nb\n"))
	d := Document{Text: "fn main() {\n}"}
	assert.Equal(t, []string{"fn main() {", "}"}, d.Lines())
}
