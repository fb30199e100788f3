package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// the document served before an admin ever saved a theme
const defaultThemeJSON = `{
  "colors": {
    "primary": "#007bff",
    "background": "#ffffff",
    "text": "#333333"
  },
  "content": {
    "heroTitle": "215 WEB CONNECT",
    "heroSubtitle": "Building Digital Excellence"
  }
}`

func DefaultTheme() map[string]interface{} {
	var theme map[string]interface{}
	// the default document is a compile-time constant, it always parses
	if err := json.Unmarshal([]byte(defaultThemeJSON), &theme); err != nil {
		panic(fmt.Sprintf("default theme document invalid: %s", err))
	}
	return theme
}

// FileStore owns the singleton theme document on disk. Reads never
// fail towards the caller, writes replace the document wholesale.
type FileStore struct {
	path  string
	mutex sync.RWMutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read returns the persisted theme document, falling back to the
// default one when the file is missing or unparsable
func (fs *FileStore) Read() map[string]interface{} {
	fs.mutex.RLock()
	defer fs.mutex.RUnlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("read theme settings [%s]: %s", fs.path, err)
		}
		return DefaultTheme()
	}

	var theme map[string]interface{}
	if err := json.Unmarshal(data, &theme); err != nil {
		log.Errorf("unmarshal theme settings [%s]: %s", fs.path, err)
		return DefaultTheme()
	}

	return theme
}

// Write persists the document atomically: write to a temp file in the
// same directory, then rename over the old one, so concurrent readers
// never observe a partial write
func (fs *FileStore) Write(theme map[string]interface{}) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	data, err := json.MarshalIndent(theme, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal theme settings: %w", err)
	}

	dir := filepath.Dir(fs.path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(fs.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp theme settings file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		// no-op after a successful rename
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Warnf("remove temp theme settings file [%s]: %s", tmpPath, err)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp theme settings file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("sync temp theme settings file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp theme settings file: %w", err)
	}

	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("replace theme settings file: %w", err)
	}

	return nil
}
