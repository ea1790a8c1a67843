package helpers

import (
	"io/fs"
	"os"
	"time"
)

type mockFileInfo struct {
	name string
	size int64
	dir  bool
}

func (m mockFileInfo) Name() string { return m.name }

func (m mockFileInfo) Size() int64 { return m.size }

func (m mockFileInfo) Mode() fs.FileMode {
	if m.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

func (m mockFileInfo) ModTime() time.Time { return time.Time{} }

func (m mockFileInfo) IsDir() bool { return m.dir }

func (m mockFileInfo) Sys() any { return nil }

var _ os.FileInfo = mockFileInfo{}

// MockFileInfo returns file metadata with the given name and size.
func MockFileInfo(name string, size int64, dir bool) os.FileInfo {
	return mockFileInfo{name: name, size: size, dir: dir}
}

type mockDirEntry struct {
	info mockFileInfo
}

func (m mockDirEntry) Name() string { return m.info.name }

func (m mockDirEntry) IsDir() bool { return m.info.dir }

func (m mockDirEntry) Type() fs.FileMode { return m.info.Mode().Type() }

func (m mockDirEntry) Info() (fs.FileInfo, error) { return m.info, nil }

var _ os.DirEntry = mockDirEntry{}

// MockDirEntry returns a directory listing entry with the given name.
func MockDirEntry(name string, dir bool) os.DirEntry {
	return mockDirEntry{info: mockFileInfo{name: name, dir: dir}}
}
