package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

func newSandboxedFS(t *testing.T) (*FilesystemTool, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFilesystemTool([]string{dir}, nil, zap.NewNop()), dir
}

func TestFilesystem_ReadWriteRoundTrip(t *testing.T) {
	fs, dir := newSandboxedFS(t)
	path := filepath.Join(dir, "note.txt")

	res := fs.Execute(context.Background(), map[string]any{
		"operation": "write_file",
		"path":      path,
		"content":   "hello",
	})
	if res.Status != domaintool.StatusSuccess {
		t.Fatalf("write: %+v", res)
	}

	res = fs.Execute(context.Background(), map[string]any{
		"operation": "read_file",
		"path":      path,
	})
	if res.Status != domaintool.StatusSuccess || res.Output != "hello" {
		t.Fatalf("read: %+v", res)
	}
}

func TestFilesystem_DenyOutsideAllowlist(t *testing.T) {
	fs, _ := newSandboxedFS(t)

	res := fs.Execute(context.Background(), map[string]any{
		"operation": "read_file",
		"path":      "/etc/passwd",
	})
	if res.Status != domaintool.StatusError {
		t.Fatalf("expected denial, got %+v", res)
	}
	if !strings.Contains(res.Error, "Access denied") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestFilesystem_DenylistWinsOverAllowlist(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret")
	os.MkdirAll(secret, 0o755)
	fs := NewFilesystemTool([]string{dir}, []string{secret}, zap.NewNop())

	res := fs.Execute(context.Background(), map[string]any{
		"operation": "file_exists",
		"path":      filepath.Join(secret, "x"),
	})
	if res.Status != domaintool.StatusError || !strings.Contains(res.Error, "denied location") {
		t.Errorf("result = %+v", res)
	}
}

func TestFilesystem_BinaryReadDescriptor(t *testing.T) {
	fs, dir := newSandboxedFS(t)
	path := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}

	res := fs.Execute(context.Background(), map[string]any{
		"operation": "read_file",
		"path":      path,
	})
	if res.Status != domaintool.StatusSuccess {
		t.Fatalf("read: %+v", res)
	}
	if res.Output != "<binary file, 4 bytes>" {
		t.Errorf("output = %v", res.Output)
	}
	if res.Metadata["binary"] != true {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestFilesystem_WriteFileRequiresParentUnlessCreateParents(t *testing.T) {
	fs, dir := newSandboxedFS(t)
	path := filepath.Join(dir, "deep", "nested", "f.txt")

	res := fs.Execute(context.Background(), map[string]any{
		"operation": "write_file",
		"path":      path,
		"content":   "x",
	})
	if res.Status != domaintool.StatusError {
		t.Fatalf("expected missing-parent error, got %+v", res)
	}

	res = fs.Execute(context.Background(), map[string]any{
		"operation":      "write_file",
		"path":           path,
		"content":        "x",
		"create_parents": true,
	})
	if res.Status != domaintool.StatusSuccess {
		t.Fatalf("create_parents write: %+v", res)
	}
}

func TestFilesystem_DeleteFileRefusesDirectory(t *testing.T) {
	fs, dir := newSandboxedFS(t)
	sub := filepath.Join(dir, "subdir")
	os.Mkdir(sub, 0o755)

	res := fs.Execute(context.Background(), map[string]any{
		"operation": "delete_file",
		"path":      sub,
	})
	if res.Status != domaintool.StatusError || !strings.Contains(res.Error, "directory") {
		t.Errorf("result = %+v", res)
	}
}

func TestFilesystem_ListDirectorySorted(t *testing.T) {
	fs, dir := newSandboxedFS(t)
	for _, name := range []string{"b.txt", "a.txt"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
	}

	res := fs.Execute(context.Background(), map[string]any{
		"operation": "list_directory",
		"path":      dir,
	})
	if res.Status != domaintool.StatusSuccess {
		t.Fatalf("list: %+v", res)
	}
	entries := res.Output.([]map[string]any)
	if len(entries) != 2 || entries[0]["name"] != "a.txt" || entries[1]["name"] != "b.txt" {
		t.Errorf("entries = %v", entries)
	}
}
