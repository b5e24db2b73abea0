//go:build !darwin

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// fileBackend keeps `prepgen config set` values as a flat JSON object keyed
// by dotted key name, e.g. {"api.base_url": "...", "render.width": 100}.
type fileBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() ConfigBackend {
	return openFileBackend(configFilePath())
}

// openFileBackend reads path if it exists. A missing or unreadable file
// yields an empty backend so the built-in defaults apply.
func openFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: map[string]any{}}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return b
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		return b
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&b.data); err != nil {
		slog.Warn("config file is not valid JSON, using defaults", "path", path, "error", err)
		b.data = map[string]any{}
	}
	return b
}

// configFilePath is $XDG_CONFIG_HOME/prepgen/config.json, falling back to
// ~/.config.
func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "prepgen", "config.json")
}

// flush rewrites the file through a temp file so a crash never leaves a
// truncated config behind.
func (b *fileBackend) flush() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	raw, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	switch v := b.data[key].(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case json.Number:
		// "api.timeout": 30 is accepted as seconds.
		return v.String() + "s", true, nil
	default:
		return "", true, fmt.Errorf("%s must be a string, got %T", key, v)
	}
}

// GetInt accepts both JSON numbers and numeric strings, since hand-edited
// files often quote render.width.
func (b *fileBackend) GetInt(key string) (int, bool, error) {
	var raw string
	switch v := b.data[key].(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		raw = v.String()
	case string:
		raw = v
	default:
		return 0, true, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return i, true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	b.data[key] = val
	return b.flush()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.data[key] = json.Number(strconv.Itoa(val))
	return b.flush()
}

func (b *fileBackend) Delete(key string) error {
	if _, ok := b.data[key]; !ok {
		return nil
	}
	delete(b.data, key)
	return b.flush()
}
