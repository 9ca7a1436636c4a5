// Package registry persists the list of data directories known to eda and fans retrieval
// queries out across them.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/mwiater/eda/internal/rag"
)

// ErrInvalidEntry is returned when an update names no usable data directory.
var ErrInvalidEntry = errors.New("invalid registry entry")

// Entry is one registered data directory.
type Entry struct {
	DataDirectory      string    `yaml:"data_directory" json:"data_directory"`
	DataFormat         string    `yaml:"data_format,omitempty" json:"data_format,omitempty"`
	CacheFileDirectory string    `yaml:"cache_file_directory,omitempty" json:"cache_file_directory,omitempty"`
	Status             string    `yaml:"status,omitempty" json:"status,omitempty"`
	Timestamp          time.Time `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	LastDataUpdate     time.Time `yaml:"last_data_update,omitempty" json:"last_data_update,omitempty"`
}

// UnmarshalYAML accepts files written by other registry tools: "format" is read as
// data_format, and timestamps may be RFC 3339, zone-less ISO 8601 (local time) or float
// Unix epochs. Unreadable timestamps are dropped rather than failing the whole file.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DataDirectory      string    `yaml:"data_directory"`
		DataFormat         string    `yaml:"data_format"`
		Format             string    `yaml:"format"`
		CacheFileDirectory string    `yaml:"cache_file_directory"`
		Status             string    `yaml:"status"`
		Timestamp          yaml.Node `yaml:"timestamp"`
		LastDataUpdate     yaml.Node `yaml:"last_data_update"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*e = Entry{
		DataDirectory:      raw.DataDirectory,
		DataFormat:         raw.DataFormat,
		CacheFileDirectory: raw.CacheFileDirectory,
		Status:             raw.Status,
		Timestamp:          decodeTime(&raw.Timestamp),
		LastDataUpdate:     decodeTime(&raw.LastDataUpdate),
	}
	if e.DataFormat == "" {
		e.DataFormat = raw.Format
	}
	return nil
}

var localTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func decodeTime(node *yaml.Node) time.Time {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		return time.Time{}
	}
	value := strings.TrimSpace(node.Value)
	if value == "" {
		return time.Time{}
	}
	if epoch, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(epoch) && !math.IsInf(epoch, 0) {
		sec, frac := math.Modf(epoch)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	slog.Warn("ignoring unreadable registry timestamp", "value", value, "line", node.Line)
	return time.Time{}
}

// Registry reads and writes the registry YAML file.
type Registry struct {
	path  string
	clock clockwork.Clock
	mu    sync.Mutex
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for entry timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// New returns a Registry backed by the file at path.
func New(path string, opts ...Option) *Registry {
	r := &Registry{path: path, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// List returns the registered entries in registration order. A missing file is an
// empty registry.
func (r *Registry) List() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Update inserts entry or replaces the entry registered for the same absolute directory,
// keeping its position. Timestamp and LastDataUpdate are stamped from the clock and the
// newest file modification time under the directory.
func (r *Registry) Update(entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.DataDirectory) == "" {
		return Entry{}, fmt.Errorf("%w: data_directory is required", ErrInvalidEntry)
	}
	abs, err := filepath.Abs(entry.DataDirectory)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if !info.IsDir() {
		return Entry{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidEntry, abs)
	}

	latest, err := latestModTime(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("scan %s: %w", abs, err)
	}

	entry.DataDirectory = abs
	if entry.CacheFileDirectory == "" {
		entry.CacheFileDirectory = rag.StoragePath(abs)
	}
	entry.Timestamp = r.clock.Now().UTC()
	entry.LastDataUpdate = latest.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return Entry{}, err
	}
	found := false
	for i, existing := range entries {
		if sameDirectory(existing.DataDirectory, abs) {
			entries[i] = entry
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, entry)
	}
	if err := r.save(entries); err != nil {
		return Entry{}, err
	}
	slog.Info("registry updated", "dir", abs, "replaced", found)
	return entry, nil
}

// Clear deletes the registry file. With purgeCaches it also removes each entry's index
// storage. It returns the number of entries that were registered.
func (r *Registry) Clear(purgeCaches bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return 0, err
	}
	if purgeCaches {
		for _, entry := range entries {
			storage := entry.CacheFileDirectory
			if storage == "" {
				storage = rag.StoragePath(entry.DataDirectory)
			}
			if err := os.RemoveAll(storage); err != nil {
				slog.Warn("could not purge index storage", "path", storage, "err", err)
			}
		}
	}
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("remove registry: %w", err)
	}
	return len(entries), nil
}

func (r *Registry) load() ([]Entry, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	return entries, nil
}

func (r *Registry) save(entries []Entry) error {
	raw, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

func sameDirectory(a, b string) bool {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	return absA == b
}

// latestModTime returns the newest modification time of any file under dir, ignoring
// the directory's own index cache.
func latestModTime(dir string) (time.Time, error) {
	var latest time.Time
	cacheDir := rag.CacheDir(dir)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == cacheDir {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return latest, err
}
