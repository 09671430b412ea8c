package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunDialStdioEchoes(t *testing.T) {
	dir, err := os.MkdirTemp("", "wgd")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "s.sock")

	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		data, _ := io.ReadAll(c)
		_, _ = c.Write(bytes.ToUpper(data))
	}()

	var out bytes.Buffer
	if err := runDialStdio(context.Background(), sock, strings.NewReader("ping"), &out); err != nil {
		t.Fatalf("runDialStdio: %v", err)
	}
	if out.String() != "PING" {
		t.Fatalf("output = %q, want PING", out.String())
	}
}

func TestRunDialStdioMissingSocket(t *testing.T) {
	t.Parallel()

	if err := runDialStdio(context.Background(), filepath.Join(t.TempDir(), "none.sock"), strings.NewReader(""), io.Discard); err == nil {
		t.Fatal("expected error for missing socket")
	}
}
