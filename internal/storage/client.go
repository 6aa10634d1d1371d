// Package storage provides the input and output collaborators of a run: a
// small file-system client interface with local and HDFS backends, a line
// Source over an input location and a segment Sink over an output location.
package storage

import (
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Client is the subset of file-system operations a run needs.
type Client interface {
	// OpenReadCloser opens the file for reading.
	OpenReadCloser(name string) (io.ReadCloser, error)
	// OpenWriteCloser creates the file for writing, truncating any
	// previous contents.
	OpenWriteCloser(name string) (io.WriteCloser, error)
	Exists(name string) (bool, error)
	IsDir(name string) (bool, error)
	// List returns the entries of dir sorted by name.
	List(dir string) ([]fs.FileInfo, error)
	MkdirAll(dir string) error
	Rename(oldpath, newpath string) error
	// RemoveAll removes name and any children. A missing name is not an error.
	RemoveAll(name string) error
	// Join joins path elements with the backend's separator.
	Join(elem ...string) string
	Close() error
}

// HDFSOptions configures the HDFS backend.
type HDFSOptions struct {
	Namenode string // host:port used when a location has no host
	User     string // user to act as; the current user when empty
}

// Resolve picks the backend for location and returns the client with the
// location's path inside that backend. hdfs://host:port/path selects HDFS;
// anything else is a local path.
func Resolve(location string, opts HDFSOptions) (Client, string, error) {
	if location == "" {
		return nil, "", fmt.Errorf("location cannot be empty")
	}
	if !strings.HasPrefix(location, "hdfs://") {
		return NewLocalFSClient(), filepath.Clean(location), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("invalid HDFS location %q: %w", location, err)
	}
	namenode := u.Host
	if namenode == "" {
		namenode = opts.Namenode
	}
	if namenode == "" {
		return nil, "", fmt.Errorf("HDFS location %q has no namenode and none is configured", location)
	}
	p := path.Clean("/" + u.Path)

	client, err := NewHdfsClient(namenode, opts.User)
	if err != nil {
		return nil, "", err
	}
	return client, p, nil
}

func existCommon(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
