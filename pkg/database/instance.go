package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// NoDependenciesSentinel is touched inside deps/ when an instance has no
// upstream dependencies.
const NoDependenciesSentinel = "__NO_DEPENDENCIES__"

// MissingResultError reports a read of a result that has not been produced
// (or has been invalidated) for an instance.
type MissingResultError struct {
	Path string
}

func (e *MissingResultError) Error() string {
	return fmt.Sprintf("result not found: %s", e.Path)
}

// Instance owns the on-disk footprint of one (class, id) cache entry:
//
//	<results>/<id>/
//	  args.json   the fingerprint bytes
//	  result      opaque bytes of the last successful result
//	  stdout      captured standard output
//	  stderr      captured standard error
//	  data/       task-owned scratch directory
//	  deps/       named symlinks to upstream instance directories
type Instance struct {
	basePath     string
	id           int
	argkey       []byte
	dependencies map[string]string // dep name -> upstream instance path
}

func newInstance(basePath string, id int, argkey []byte, deps map[string]string) (*Instance, error) {
	inst := &Instance{basePath: basePath, id: id, argkey: argkey, dependencies: deps}
	if _, err := os.Stat(inst.Path()); os.IsNotExist(err) {
		if err := inst.Init(); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// ID returns the instance id
func (i *Instance) ID() int { return i.id }

// Path is the instance directory, derived deterministically from the id
func (i *Instance) Path() string { return filepath.Join(i.basePath, strconv.Itoa(i.id)) }

// ArgsPath holds the fingerprint bytes
func (i *Instance) ArgsPath() string { return filepath.Join(i.Path(), "args.json") }

// ResultPath holds the opaque result bytes
func (i *Instance) ResultPath() string { return filepath.Join(i.Path(), "result") }

// StdoutPath holds the captured standard output
func (i *Instance) StdoutPath() string { return filepath.Join(i.Path(), "stdout") }

// StderrPath holds the captured standard error
func (i *Instance) StderrPath() string { return filepath.Join(i.Path(), "stderr") }

// DataDir is the task-owned scratch directory. Contents survive reruns and
// are wiped only by Delete or a class-level clear.
func (i *Instance) DataDir() string { return filepath.Join(i.Path(), "data") }

// DepsDir records one symlink per upstream dependency
func (i *Instance) DepsDir() string { return filepath.Join(i.Path(), "deps") }

// Init wipes and recreates the instance directory: args.json is written,
// data/ and deps/ are created, and dependency symlinks (or the sentinel) are
// laid down.
func (i *Instance) Init() error {
	if err := os.RemoveAll(i.Path()); err != nil {
		return fmt.Errorf("failed to remove instance directory: %w", err)
	}
	if err := os.MkdirAll(i.Path(), 0755); err != nil {
		return fmt.Errorf("failed to create instance directory: %w", err)
	}
	if err := os.WriteFile(i.ArgsPath(), i.argkey, 0644); err != nil {
		return fmt.Errorf("failed to write args.json: %w", err)
	}
	if err := os.Mkdir(i.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.Mkdir(i.DepsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create deps directory: %w", err)
	}

	if len(i.dependencies) == 0 {
		sentinel := filepath.Join(i.DepsDir(), NoDependenciesSentinel)
		if err := os.WriteFile(sentinel, nil, 0644); err != nil {
			return fmt.Errorf("failed to write deps sentinel: %w", err)
		}
		return nil
	}
	for name, target := range i.dependencies {
		resolved, err := filepath.Abs(target)
		if err != nil {
			return fmt.Errorf("failed to resolve dependency %s: %w", name, err)
		}
		if err := os.Symlink(resolved, filepath.Join(i.DepsDir(), name)); err != nil {
			return fmt.Errorf("failed to link dependency %s: %w", name, err)
		}
	}
	return nil
}

// SaveResult atomically replaces the result file with data and returns its
// modification time.
func (i *Instance) SaveResult(data []byte) (time.Time, error) {
	tmp, err := os.CreateTemp(i.Path(), ".result-*")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to create result temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("failed to write result: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("failed to sync result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return time.Time{}, err
	}
	if err := os.Rename(tmpName, i.ResultPath()); err != nil {
		os.Remove(tmpName)
		return time.Time{}, fmt.Errorf("failed to publish result: %w", err)
	}
	return i.Timestamp()
}

// LoadResult reads the stored result bytes
func (i *Instance) LoadResult() ([]byte, error) {
	data, err := os.ReadFile(i.ResultPath())
	if os.IsNotExist(err) {
		return nil, &MissingResultError{Path: i.ResultPath()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return data, nil
}

// HasResult reports whether a result has been produced since the last
// invalidation.
func (i *Instance) HasResult() bool {
	_, err := os.Stat(i.ResultPath())
	return err == nil
}

// Timestamp returns the modification time of the result file, failing with
// MissingResultError when no result is present.
func (i *Instance) Timestamp() (time.Time, error) {
	info, err := os.Stat(i.ResultPath())
	if os.IsNotExist(err) {
		return time.Time{}, &MissingResultError{Path: i.ResultPath()}
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Delete wipes the instance content while preserving its identity; the
// directory is reinitialized empty.
func (i *Instance) Delete() error {
	return i.Init()
}

// Deps reads back the recorded dependency links as a name -> target map.
// An instance without dependencies yields an empty map.
func (i *Instance) Deps() (map[string]string, error) {
	entries, err := os.ReadDir(i.DepsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read deps directory: %w", err)
	}
	deps := make(map[string]string)
	for _, e := range entries {
		if e.Name() == NoDependenciesSentinel {
			continue
		}
		target, err := os.Readlink(filepath.Join(i.DepsDir(), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read dep link %s: %w", e.Name(), err)
		}
		deps[e.Name()] = target
	}
	return deps, nil
}
