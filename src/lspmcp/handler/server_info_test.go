package handler

import (
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/uber/lsp-mcp/src/lspmcp/entity"
	"github.com/uber/lsp-mcp/src/lspmcp/internal/serverinfofile/serverinfofilemock"
	"github.com/uber/lsp-mcp/src/lspmcp/repository/project/projectmock"
	"go.uber.org/mock/gomock"
)

type sseServer struct{}

func (sseServer) AddTool(mcp.Tool, server.ToolHandlerFunc) {}

func (sseServer) Transport() string { return "sse" }

func TestOutputConnectionInfo(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(infofile *serverinfofilemock.MockServerInfoFile, projects *projectmock.MockRepository)
		wantErr    string
	}{
		{
			name: "records transport and roots",
			setupMocks: func(infofile *serverinfofilemock.MockServerInfoFile, projects *projectmock.MockRepository) {
				projects.EXPECT().Projects().Return([]entity.Project{{Root: "/a"}, {Root: "/b"}})
				infofile.EXPECT().UpdateField("mcp-transport", "sse").Return(nil)
				infofile.EXPECT().UpdateField("projects-roots", "/a:/b").Return(nil)
			},
		},
		{
			name: "transport write fails",
			setupMocks: func(infofile *serverinfofilemock.MockServerInfoFile, projects *projectmock.MockRepository) {
				infofile.EXPECT().UpdateField("mcp-transport", "sse").Return(errors.New("disk full"))
			},
			wantErr: "recording transport: disk full",
		},
		{
			name: "roots write fails",
			setupMocks: func(infofile *serverinfofilemock.MockServerInfoFile, projects *projectmock.MockRepository) {
				projects.EXPECT().Projects().Return(nil)
				infofile.EXPECT().UpdateField("mcp-transport", "sse").Return(nil)
				infofile.EXPECT().UpdateField("projects-roots", "").Return(errors.New("disk full"))
			},
			wantErr: "recording project roots: disk full",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			infofile := serverinfofilemock.NewMockServerInfoFile(ctrl)
			projects := projectmock.NewMockRepository(ctrl)
			tt.setupMocks(infofile, projects)

			err := outputConnectionInfo(projects, sseServer{}, infofile)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
