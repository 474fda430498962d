package recorder

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// CheckpointPath returns where a checkpoint for (name, epoch) is written.
// An empty name uses the model name.
func (r *Recorder) CheckpointPath(name string, epoch int) string {
	if name == "" {
		name = r.modelName
	}
	return filepath.Join(r.checkpointDir, fmt.Sprintf("%s_epoch_%d", name, epoch))
}

// SaveCheckpoint serializes state to {checkpoint dir}/{name}_epoch_{epoch},
// replacing any earlier checkpoint with the same name and epoch, and returns
// the path. An empty name uses the model name. With a mirror configured the
// file is uploaded afterwards.
func (r *Recorder) SaveCheckpoint(ctx context.Context, state interface{}, epoch int, name string) (string, error) {
	path := r.CheckpointPath(name, epoch)
	if err := r.serializer.Save(state, path); err != nil {
		return "", fmt.Errorf("failed to save checkpoint for epoch %d: %w", epoch, err)
	}

	fmt.Fprintf(r.out, ">> epoch_%d saving in %s\n", epoch, r.checkpointDir)
	r.logger.Info("checkpoint saved",
		zap.Int("epoch", epoch),
		zap.String("path", path),
		zap.String("format", r.serializer.Format().String()),
	)

	if r.mirror != nil {
		location, err := r.mirror.Upload(ctx, path)
		if err != nil {
			return path, fmt.Errorf("failed to mirror checkpoint %s: %w", filepath.Base(path), err)
		}
		r.logger.Info("checkpoint mirrored", zap.String("path", path), zap.String("location", location))
	}
	return path, nil
}
