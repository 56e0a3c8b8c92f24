package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/koheimiya/taskproc/pkg/idtable"
)

// Database is the per-task-class cache container. Layout under the cache
// root:
//
//	<cache_root>/<class_name>/
//	  source.txt    opaque UTF-8 source version token
//	  id_table/     persistent fingerprint -> instance id map
//	  results/<id>/ instance directories
type Database struct {
	name          string
	basePath      string
	compressLevel int
	idTable       *idtable.Table
}

// Open opens (or creates) the database of one task class under cacheRoot
func Open(cacheRoot, name string, compressLevel int) (*Database, error) {
	basePath := filepath.Join(cacheRoot, name)
	if err := os.MkdirAll(filepath.Join(basePath, "results"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database for %s: %w", name, err)
	}
	table, err := idtable.Open(filepath.Join(basePath, "id_table"))
	if err != nil {
		return nil, err
	}
	return &Database{
		name:          name,
		basePath:      basePath,
		compressLevel: compressLevel,
		idTable:       table,
	}, nil
}

// Close releases the id table
func (d *Database) Close() error {
	return d.idTable.Close()
}

// Name returns the task class name
func (d *Database) Name() string { return d.name }

// CompressLevel returns the class's result compression level
func (d *Database) CompressLevel() int { return d.compressLevel }

// ResultsDir holds the instance directories
func (d *Database) ResultsDir() string { return filepath.Join(d.basePath, "results") }

// SourcePath holds the class's source version token
func (d *Database) SourcePath() string { return filepath.Join(d.basePath, "source.txt") }

// IdTable exposes the fingerprint -> id mapping
func (d *Database) IdTable() *idtable.Table { return d.idTable }

// GetInstance resolves (and materializes if needed) the instance directory
// for the fingerprint key. deps maps dependency names to the upstream
// instance paths discovered during graph resolution.
func (d *Database) GetInstance(key []byte, deps map[string]string) (*Instance, error) {
	id, err := d.idTable.Get(key)
	if err != nil {
		return nil, err
	}
	return newInstance(d.ResultsDir(), id, key, deps)
}

// InstanceByID opens an existing instance directory without consulting the
// id table. Used for inspection and clearing; the directory must already
// exist. The recorded dependency links are read back so that Delete lays
// them down again.
func (d *Database) InstanceByID(id int) (*Instance, error) {
	inst := &Instance{basePath: d.ResultsDir(), id: id}
	if _, err := os.Stat(inst.Path()); err != nil {
		return nil, fmt.Errorf("instance %d of %s not found: %w", id, d.name, err)
	}
	argkey, err := os.ReadFile(inst.ArgsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read args.json of %s/%d: %w", d.name, id, err)
	}
	inst.argkey = argkey
	deps, err := inst.Deps()
	if err != nil {
		return nil, err
	}
	inst.dependencies = deps
	return inst, nil
}

// UpdateSourceIfNecessary compares source with the stored token, rewrites the
// file on mismatch (or absence), and returns its modification time. The
// returned timestamp participates in staleness: results older than it rerun.
func (d *Database) UpdateSourceIfNecessary(source string) (time.Time, error) {
	cached, err := os.ReadFile(d.SourcePath())
	if err != nil && !os.IsNotExist(err) {
		return time.Time{}, fmt.Errorf("failed to read source token: %w", err)
	}
	if err != nil || string(cached) != source {
		if err := os.WriteFile(d.SourcePath(), []byte(source), 0644); err != nil {
			return time.Time{}, fmt.Errorf("failed to write source token: %w", err)
		}
	}
	return d.SourceTimestamp()
}

// SourceTimestamp returns the modification time of source.txt
func (d *Database) SourceTimestamp() (time.Time, error) {
	info, err := os.Stat(d.SourcePath())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat source token: %w", err)
	}
	return info.ModTime(), nil
}

// Clear invalidates the whole class: the id table is emptied and results/ is
// removed and recreated.
func (d *Database) Clear() error {
	if err := d.idTable.Clear(); err != nil {
		return err
	}
	if err := os.RemoveAll(d.ResultsDir()); err != nil {
		return fmt.Errorf("failed to remove results of %s: %w", d.name, err)
	}
	if err := os.Mkdir(d.ResultsDir(), 0755); err != nil {
		return fmt.Errorf("failed to recreate results of %s: %w", d.name, err)
	}
	return nil
}
