package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// Ingester uploads every matching text file under a directory.
type Ingester struct {
	walker port.FileWalker
	reader port.FileReader
	docs   *DocumentService
	logger *zap.Logger
}

func NewIngester(walker port.FileWalker, reader port.FileReader, docs *DocumentService, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{walker: walker, reader: reader, docs: docs, logger: logger}
}

type IngestResult struct {
	Uploaded []UploadResult `json:"uploaded"`
	Removed  []string       `json:"removed,omitempty"`
	Skipped  []string       `json:"skipped"`
	Errors   []string       `json:"errors"`
}

// IngestProgress is told the total once, then called after each file.
type IngestProgress interface {
	Start(total int)
	Done(relPath string)
}

// Ingest stores each file under its slash-separated path relative to root.
// Binary files are skipped; other per-file failures are collected and the
// walk continues. Only cancellation aborts the run.
func (i *Ingester) Ingest(ctx context.Context, root string, progress IngestProgress) (*IngestResult, error) {
	files, err := i.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	if progress != nil {
		progress.Start(len(files))
	}

	result := &IngestResult{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := i.upload(ctx, f.Path, f.RelPath, result); err != nil {
			return result, err
		}
		if progress != nil {
			progress.Done(f.RelPath)
		}
	}

	i.logger.Info("ingest finished",
		zap.String("root", root),
		zap.Int("uploaded", len(result.Uploaded)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// upload records the outcome for one file in result. It returns an error
// only when ctx is done.
func (i *Ingester) upload(ctx context.Context, path, relPath string, result *IngestResult) error {
	text, err := i.reader.ReadText(path)
	switch {
	case errors.Is(err, domain.ErrUnsupportedType):
		i.logger.Debug("skipping non-text file", zap.String("path", relPath))
		result.Skipped = append(result.Skipped, relPath)
	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", relPath, err))
	default:
		up, err := i.docs.Upload(ctx, relPath, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", relPath, err))
			return nil
		}
		result.Uploaded = append(result.Uploaded, *up)
	}
	return nil
}

// Sync applies one batch of file changes: modified files are uploaded again
// and removed files are deleted. Removing a file that was never uploaded is
// not an error.
func (i *Ingester) Sync(ctx context.Context, changes []port.FileChange) (*IngestResult, error) {
	result := &IngestResult{}
	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !c.Removed {
			if err := i.upload(ctx, c.Path, c.RelPath, result); err != nil {
				return result, err
			}
			continue
		}
		err := i.docs.Delete(c.RelPath)
		switch {
		case err == nil:
			result.Removed = append(result.Removed, c.RelPath)
		case !errors.Is(err, domain.ErrNotFound):
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.RelPath, err))
		}
	}
	return result, nil
}

// Watch keeps the store in step with root until ctx is done. report, if
// set, receives the outcome of every batch.
func (i *Ingester) Watch(ctx context.Context, root string, watcher port.FileWatcher, report func(*IngestResult)) error {
	return watcher.Watch(ctx, root, func(changes []port.FileChange) {
		result, err := i.Sync(ctx, changes)
		if err != nil {
			i.logger.Warn("sync stopped before the batch finished",
				zap.Int("changes", len(changes)),
				zap.Int("uploaded", len(result.Uploaded)),
				zap.Int("removed", len(result.Removed)),
				zap.Error(err),
			)
		} else {
			i.logger.Info("synced changes",
				zap.Int("uploaded", len(result.Uploaded)),
				zap.Int("removed", len(result.Removed)),
				zap.Int("errors", len(result.Errors)),
			)
		}
		if report != nil {
			report(result)
		}
	})
}
