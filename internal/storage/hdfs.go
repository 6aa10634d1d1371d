package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/colinmarc/hdfs/v2"
)

// Requirement:
//   Hadoop/HDFS version: 2 or later, namenode RPC port reachable.

// HdfsClient is a Client backed by an HDFS namenode.
type HdfsClient struct {
	client   *hdfs.Client
	namenode string
	user     string
}

// NewHdfsClient connects to namenode as user.
func NewHdfsClient(namenode, user string) (*HdfsClient, error) {
	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: []string{namenode},
		User:      user,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to HDFS namenode %s: %w", namenode, err)
	}
	return &HdfsClient{
		client:   client,
		namenode: namenode,
		user:     user,
	}, nil
}

func (c *HdfsClient) OpenReadCloser(name string) (io.ReadCloser, error) {
	return c.client.Open(name)
}

// OpenWriteCloser replaces name with a new empty file. HDFS has no truncate
// on create, so an existing file is removed first.
func (c *HdfsClient) OpenWriteCloser(name string) (io.WriteCloser, error) {
	exist, err := c.Exists(name)
	if err != nil {
		return nil, err
	}
	if exist {
		if err := c.client.Remove(name); err != nil {
			return nil, err
		}
	}
	return c.client.Create(name)
}

func (c *HdfsClient) Exists(name string) (bool, error) {
	_, err := c.client.Stat(name)
	return existCommon(err)
}

func (c *HdfsClient) IsDir(name string) (bool, error) {
	info, err := c.client.Stat(name)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (c *HdfsClient) List(dir string) ([]fs.FileInfo, error) {
	infos, err := c.client.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (c *HdfsClient) MkdirAll(dir string) error {
	return c.client.MkdirAll(dir, 0755)
}

func (c *HdfsClient) Rename(oldpath, newpath string) error {
	return c.client.Rename(oldpath, newpath)
}

func (c *HdfsClient) RemoveAll(name string) error {
	err := c.client.RemoveAll(name)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *HdfsClient) Join(elem ...string) string {
	return path.Join(elem...)
}

func (c *HdfsClient) Close() error {
	return c.client.Close()
}
