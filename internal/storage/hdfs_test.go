package storage

import (
	"io"
	"os"
	"path"
	"testing"
)

// Runs against a live namenode only when HDFS_NAMENODE is set.
func TestHdfsClient(t *testing.T) {
	namenode := os.Getenv("HDFS_NAMENODE")
	if namenode == "" {
		t.Skip("HDFS_NAMENODE not set")
	}
	client, err := NewHdfsClient(namenode, os.Getenv("HDFS_USER"))
	if err != nil {
		t.Fatalf("NewHdfsClient(%s) failed: %v", namenode, err)
	}
	defer client.Close()

	dir := path.Join("/tmp", "batchmr-test")
	if err := client.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if err := client.MkdirAll(dir); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	defer client.RemoveAll(dir)

	name := client.Join(dir, "testing")
	wc, err := client.OpenWriteCloser(name)
	if err != nil {
		t.Fatalf("OpenWriteCloser failed: %v", err)
	}
	if _, err := wc.Write([]byte("heyhey")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := wc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rc, err := client.OpenReadCloser(name)
	if err != nil {
		t.Fatalf("OpenReadCloser failed: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || string(data) != "heyhey" {
		t.Fatalf("Read back %q, %v", data, err)
	}

	infos, err := client.List(dir)
	if err != nil || len(infos) != 1 || infos[0].Name() != "testing" {
		t.Fatalf("List = %v, %v", infos, err)
	}
}
