package envfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/danjacques/gofslock/fslock"
	"github.com/vk/recipegrid/internal/ctxlog"
	"github.com/vk/recipegrid/internal/variant"
	"golang.org/x/sync/errgroup"
)

// lockRetryDelay is how long a writer waits before retrying a held lock.
const lockRetryDelay = 100 * time.Millisecond

// LockFileName is the lock file shared by every writer of an output
// directory.
const LockFileName = ".recipegrid.lock"

// Environment is the content of one environment file to write.
type Environment struct {
	Variant      variant.Variant
	Dependencies []string
}

// blocker is an fslock.Blocker that waits lockRetryDelay between attempts
// until ctx is done.
func blocker(ctx context.Context, dir string) fslock.Blocker {
	return func() error {
		ctxlog.FromContext(ctx).Debug("Output folder is locked by another writer, retrying.", "dir", dir)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
			return nil
		}
	}
}

// withDirLock creates dir and runs fn while holding its lock file.
func withDirLock(ctx context.Context, dir string, fn func() error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output folder %s: %w", dir, err)
	}
	return fslock.WithBlocking(filepath.Join(dir, LockFileName), blocker(ctx, dir), fn)
}

// Write writes the environment file of one variant to dir and returns its
// path. Dependencies are written sorted. The file is replaced atomically
// while holding the lock of dir, so concurrent runs sharing an output
// directory never observe a partial file.
func Write(ctx context.Context, dir, envName string, v variant.Variant, channels, deps []string) (string, error) {
	var path string
	err := withDirLock(ctx, dir, func() error {
		var err error
		path, err = write(ctx, dir, envName, v, channels, deps)
		return err
	})
	return path, err
}

func write(ctx context.Context, dir, envName string, v variant.Variant, channels, deps []string) (string, error) {
	name := FileName(envName, v)
	path := filepath.Join(dir, name)
	d := Descriptor{
		Name:         strings.TrimSuffix(name, Extension),
		Channels:     channels,
		Dependencies: slices.Sorted(slices.Values(deps)),
		Variant:      v.String(),
	}
	if err := writeAtomic(dir, path, d); err != nil {
		return "", fmt.Errorf("write env file %s: %w", path, err)
	}

	ctxlog.FromContext(ctx).Debug("Env file written.", "path", path, "dependencies", len(d.Dependencies))
	return path, nil
}

func writeAtomic(dir, path string, d Descriptor) error {
	tmp, err := os.CreateTemp(dir, ".envfile-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, d); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteAll writes the environment files of every given environment
// concurrently under one hold of the lock of dir and returns their paths in
// the order of envs. It stops at the first error.
func WriteAll(ctx context.Context, dir, envName string, channels []string, envs []Environment) ([]string, error) {
	paths := make([]string, len(envs))
	err := withDirLock(ctx, dir, func() error {
		eg, ectx := errgroup.WithContext(ctx)
		for i, env := range envs {
			eg.Go(func() error {
				path, err := write(ectx, dir, envName, env.Variant, channels, env.Dependencies)
				if err != nil {
					return err
				}
				paths[i] = path
				return nil
			})
		}
		return eg.Wait()
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
