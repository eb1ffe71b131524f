package params

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileStore is a Store persisted as a flat YAML mapping, the way the job
// framework hands parameters to a step process.
type FileStore struct {
	path   string
	values map[string]string
}

// LoadFileStore reads path. A missing file yields an empty store that will be
// created on Save.
func LoadFileStore(path string) (*FileStore, error) {
	fstore := &FileStore{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fstore, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}

	if err := yaml.Unmarshal(data, &fstore.values); err != nil {
		return nil, fmt.Errorf("decode params %s: %w", path, err)
	}
	if fstore.values == nil {
		fstore.values = map[string]string{}
	}
	return fstore, nil
}

func (f *FileStore) Set(key, value string) { f.values[key] = value }

func (f *FileStore) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Save writes the store back to its file.
func (f *FileStore) Save() error {
	data, err := yaml.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	dir := filepath.Dir(f.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create params directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	return nil
}
