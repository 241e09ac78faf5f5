// Package preset stores named parameter snapshots next to a script and
// exports or imports them as standalone JSON files.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scenetuner/internal/domain"
)

// Suffix ends every preset file name.
const Suffix = ".preset.json"

// Preset is the on-disk preset document.
type Preset struct {
	Name       string                  `json:"name"`
	Created    time.Time               `json:"created"`
	Script     string                  `json:"script"`
	Parameters map[string]domain.Value `json:"parameters"`
}

// Export is the on-disk export document.
type Export struct {
	Script     string                  `json:"script"`
	Exported   time.Time               `json:"exported"`
	Parameters map[string]domain.Value `json:"parameters"`
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock sets the time source for created and exported timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDir keeps presets in dir instead of next to the script.
func WithDir(dir string) Option {
	return func(s *FileStore) {
		if dir != "" {
			s.dir = dir
		}
	}
}

// FileStore keeps presets for one script as
// <script-stem>_<sanitized-name>.preset.json files.
type FileStore struct {
	script string
	stem   string
	dir    string
	now    func() time.Time
}

// NewFileStore creates a preset store for script.
func NewFileStore(script string, opts ...Option) *FileStore {
	base := filepath.Base(script)
	s := &FileStore{
		script: script,
		stem:   strings.TrimSuffix(base, filepath.Ext(base)),
		dir:    filepath.Dir(script),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sanitize maps a preset name to its file-name form: spaces and path
// separators become underscores.
func Sanitize(name string) string {
	return strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(name)
}

// Path returns the file that holds the named preset.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, s.stem+"_"+Sanitize(name)+Suffix)
}

// Save writes params under name, replacing any preset with the same name.
func (s *FileStore) Save(name string, params map[string]domain.Value) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewSubSystemError("preset", "FileStore.Save", domain.ErrInvalidInput, "preset name is empty")
	}
	doc := Preset{
		Name:       name,
		Created:    s.now(),
		Script:     filepath.Base(s.script),
		Parameters: params,
	}
	if err := writeJSON(s.Path(name), doc); err != nil {
		return domain.NewSubSystemError("preset", "FileStore.Save", domain.ErrPersistence, err.Error())
	}
	return nil
}

// Load returns the parameters of the named preset.
func (s *FileStore) Load(name string) (map[string]domain.Value, error) {
	var doc Preset
	if err := readJSON(s.Path(name), &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewSubSystemError("preset", "FileStore.Load", domain.ErrNotFound,
				fmt.Sprintf("preset %q", name))
		}
		return nil, domain.NewSubSystemError("preset", "FileStore.Load", domain.ErrPersistence, err.Error())
	}
	if doc.Parameters == nil {
		doc.Parameters = map[string]domain.Value{}
	}
	return doc.Parameters, nil
}

// List returns the sanitized names of this script's presets, sorted.
func (s *FileStore) List() ([]string, error) {
	prefix := s.stem + "_"
	matches, err := filepath.Glob(filepath.Join(s.dir, globEscape(prefix)+"*"+Suffix))
	if err != nil {
		return nil, domain.NewSubSystemError("preset", "FileStore.List", domain.ErrPersistence, err.Error())
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), Suffix)
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named preset.
func (s *FileStore) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewSubSystemError("preset", "FileStore.Delete", domain.ErrNotFound,
				fmt.Sprintf("preset %q", name))
		}
		return domain.NewSubSystemError("preset", "FileStore.Delete", domain.ErrPersistence, err.Error())
	}
	return nil
}

// Export writes params to an export document at path.
func (s *FileStore) Export(path string, params map[string]domain.Value) error {
	doc := Export{
		Script:     filepath.Base(s.script),
		Exported:   s.now(),
		Parameters: params,
	}
	if err := writeJSON(path, doc); err != nil {
		return domain.NewSubSystemError("preset", "FileStore.Export", domain.ErrPersistence, err.Error())
	}
	return nil
}

// Import reads the parameters of an export document. A document without a
// parameters object yields an empty map.
func (s *FileStore) Import(path string) (map[string]domain.Value, error) {
	var doc Export
	if err := readJSON(path, &doc); err != nil {
		return nil, domain.NewSubSystemError("preset", "FileStore.Import", domain.ErrPersistence, err.Error())
	}
	if doc.Parameters == nil {
		doc.Parameters = map[string]domain.Value{}
	}
	return doc.Parameters, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func globEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`).Replace(s)
}
