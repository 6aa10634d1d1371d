package storage

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

type localFSClient struct{}

// NewLocalFSClient returns a Client over the local file system.
func NewLocalFSClient() Client {
	return &localFSClient{}
}

func (c *localFSClient) OpenReadCloser(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

func (c *localFSClient) OpenWriteCloser(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

func (c *localFSClient) Exists(name string) (bool, error) {
	_, err := os.Stat(name)
	return existCommon(err)
}

func (c *localFSClient) IsDir(name string) (bool, error) {
	info, err := os.Stat(name)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (c *localFSClient) List(dir string) ([]fs.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (c *localFSClient) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func (c *localFSClient) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (c *localFSClient) RemoveAll(name string) error {
	return os.RemoveAll(name)
}

func (c *localFSClient) Join(elem ...string) string {
	return filepath.Join(elem...)
}

func (c *localFSClient) Close() error {
	return nil
}
