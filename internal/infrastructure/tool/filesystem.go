// Package tool implements the built-in tools: sandboxed filesystem
// access, timeout-enforced shell execution, and size-capped web fetch.
package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

// FilesystemTool performs file and directory operations inside a
// resolved allow/deny prefix sandbox.
type FilesystemTool struct {
	allowedPaths []string // resolved prefixes
	deniedPaths  []string
	logger       *zap.Logger
}

var _ domaintool.Tool = (*FilesystemTool)(nil)

// NewFilesystemTool creates the filesystem tool. With no allowed paths
// the user's home directory is the sandbox.
func NewFilesystemTool(allowedPaths, deniedPaths []string, logger *zap.Logger) *FilesystemTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(allowedPaths) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			allowedPaths = []string{home}
		}
	}

	t := &FilesystemTool{logger: logger}
	for _, p := range allowedPaths {
		t.allowedPaths = append(t.allowedPaths, resolvePath(p))
	}
	for _, p := range deniedPaths {
		t.deniedPaths = append(t.deniedPaths, resolvePath(p))
	}

	logger.Info("Filesystem tool initialized",
		zap.Strings("allowed_paths", t.allowedPaths),
		zap.Strings("denied_paths", t.deniedPaths),
	)
	return t
}

func (t *FilesystemTool) Name() string { return "filesystem" }

func (t *FilesystemTool) Description() string {
	return "Perform filesystem operations like reading/writing files, listing directories, and managing file metadata."
}

func (t *FilesystemTool) Kind() domaintool.Kind { return domaintool.KindBuiltin }

func (t *FilesystemTool) Definition() domaintool.Definition {
	return domaintool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Kind:        t.Kind(),
		Parameters: []domaintool.Parameter{
			{
				Name:        "operation",
				Type:        "string",
				Description: "The filesystem operation to perform",
				Required:    true,
				Enum: []any{
					"read_file", "write_file", "list_directory", "create_directory",
					"delete_file", "file_exists", "get_file_info",
				},
			},
			{
				Name:        "path",
				Type:        "string",
				Description: "Path to the file or directory",
				Required:    true,
			},
			{
				Name:        "content",
				Type:        "string",
				Description: "Content to write (for write_file operation)",
			},
			{
				Name:        "create_parents",
				Type:        "boolean",
				Description: "Create parent directories if they don't exist (for write_file and create_directory)",
				Default:     false,
			},
		},
	}
}

// Execute validates the path against the sandbox and dispatches the
// operation. Denials are error results, never panics.
func (t *FilesystemTool) Execute(ctx context.Context, args map[string]any) *domaintool.Result {
	operation, _ := args["operation"].(string)
	path, _ := args["path"].(string)

	resolved, err := t.checkPath(path)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), err.Error())
	}

	switch operation {
	case "read_file":
		return t.readFile(resolved)
	case "write_file":
		content, _ := args["content"].(string)
		createParents, _ := args["create_parents"].(bool)
		return t.writeFile(resolved, content, createParents)
	case "list_directory":
		return t.listDirectory(resolved)
	case "create_directory":
		createParents, _ := args["create_parents"].(bool)
		return t.createDirectory(resolved, createParents)
	case "delete_file":
		return t.deleteFile(resolved)
	case "file_exists":
		return t.fileExists(resolved)
	case "get_file_info":
		return t.getFileInfo(resolved)
	default:
		return domaintool.ErrorResult(t.Name(), "Unknown operation: "+operation)
	}
}

// checkPath resolves symlinks and tests the result against the deny
// list first, then the allow list.
func (t *FilesystemTool) checkPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("Invalid path: empty")
	}
	resolved := resolvePath(path)

	for _, denied := range t.deniedPaths {
		if underPrefix(resolved, denied) {
			return "", fmt.Errorf("Access denied: path is in denied location")
		}
	}
	for _, allowed := range t.allowedPaths {
		if underPrefix(resolved, allowed) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("Access denied: path is outside allowed locations")
}

// resolvePath makes a path absolute and follows symlinks. For paths
// that do not exist yet, the deepest existing ancestor is resolved and
// the remainder re-joined, so a symlinked parent cannot escape the
// sandbox.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}

	dir, base := filepath.Split(filepath.Clean(abs))
	var tail []string
	for dir != "" && dir != string(filepath.Separator) {
		if resolved, err := filepath.EvalSymlinks(filepath.Clean(dir)); err == nil {
			parts := append([]string{resolved, base}, tail...)
			return filepath.Join(parts...)
		}
		tail = append([]string{base}, tail...)
		dir, base = filepath.Split(filepath.Clean(dir))
	}
	return abs
}

func underPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

func (t *FilesystemTool) readFile(path string) *domaintool.Result {
	info, err := os.Stat(path)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "File not found: "+path)
	}
	if info.IsDir() {
		return domaintool.ErrorResult(t.Name(), "Path is not a file: "+path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "Operation failed: "+err.Error())
	}

	if !utf8.Valid(data) {
		return domaintool.SuccessResult(t.Name(),
			fmt.Sprintf("<binary file, %d bytes>", len(data)),
			map[string]any{"path": path, "size": len(data), "binary": true},
		)
	}
	return domaintool.SuccessResult(t.Name(), string(data),
		map[string]any{"path": path, "size": len(data)},
	)
}

func (t *FilesystemTool) writeFile(path, content string, createParents bool) *domaintool.Result {
	parent := filepath.Dir(path)
	if createParents {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return domaintool.ErrorResult(t.Name(), "Operation failed: "+err.Error())
		}
	} else if _, err := os.Stat(parent); err != nil {
		return domaintool.ErrorResult(t.Name(), "Parent directory does not exist: "+parent)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return domaintool.ErrorResult(t.Name(), "Operation failed: "+err.Error())
	}
	return domaintool.SuccessResult(t.Name(), "File written successfully: "+path,
		map[string]any{"path": path, "size": len(content)},
	)
}

func (t *FilesystemTool) listDirectory(path string) *domaintool.Result {
	info, err := os.Stat(path)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "Directory not found: "+path)
	}
	if !info.IsDir() {
		return domaintool.ErrorResult(t.Name(), "Path is not a directory: "+path)
	}

	items, err := os.ReadDir(path)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "Operation failed: "+err.Error())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

	entries := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"name": item.Name(),
			"path": filepath.Join(path, item.Name()),
		}
		if item.IsDir() {
			entry["type"] = "directory"
		} else {
			entry["type"] = "file"
			if fi, err := item.Info(); err == nil {
				entry["size"] = fi.Size()
			}
		}
		entries = append(entries, entry)
	}

	return domaintool.SuccessResult(t.Name(), entries,
		map[string]any{"path": path, "count": len(entries)},
	)
}

func (t *FilesystemTool) createDirectory(path string, createParents bool) *domaintool.Result {
	if _, err := os.Stat(path); err == nil {
		return domaintool.ErrorResult(t.Name(), "Path already exists: "+path)
	}

	var err error
	if createParents {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "Operation failed: "+err.Error())
	}
	return domaintool.SuccessResult(t.Name(), "Directory created: "+path,
		map[string]any{"path": path},
	)
}

func (t *FilesystemTool) deleteFile(path string) *domaintool.Result {
	info, err := os.Stat(path)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "File not found: "+path)
	}
	if info.IsDir() {
		return domaintool.ErrorResult(t.Name(), "Cannot delete directory with delete_file operation: "+path)
	}
	if err := os.Remove(path); err != nil {
		return domaintool.ErrorResult(t.Name(), "Operation failed: "+err.Error())
	}
	return domaintool.SuccessResult(t.Name(), "File deleted: "+path,
		map[string]any{"path": path},
	)
}

func (t *FilesystemTool) fileExists(path string) *domaintool.Result {
	info, err := os.Lstat(path)
	exists := err == nil

	metadata := map[string]any{"path": path, "exists": exists}
	if exists {
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			metadata["type"] = "symlink"
		case info.IsDir():
			metadata["type"] = "directory"
		default:
			metadata["type"] = "file"
		}
	}
	return domaintool.SuccessResult(t.Name(), exists, metadata)
}

func (t *FilesystemTool) getFileInfo(path string) *domaintool.Result {
	info, err := os.Stat(path)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "File not found: "+path)
	}

	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	out := map[string]any{
		"path":        path,
		"name":        info.Name(),
		"type":        kind,
		"size":        info.Size(),
		"modified":    info.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00"),
		"permissions": fmt.Sprintf("%03o", info.Mode().Perm()),
	}
	return domaintool.SuccessResult(t.Name(), out, out)
}
