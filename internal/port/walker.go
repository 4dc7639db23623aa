package port

import "context"

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
}

// FileChange is a created, modified or removed file under a watched root.
type FileChange struct {
	Path    string
	RelPath string
	Removed bool
}

// FileWatcher reports batches of changes to matching files until ctx ends.
type FileWatcher interface {
	Watch(ctx context.Context, root string, onChange func([]FileChange)) error
}

type FileReader interface {
	ReadText(path string) (string, error)
}
