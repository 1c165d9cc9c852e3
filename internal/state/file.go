package state

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// LoadJSONFile reads path into T. A missing file yields the zero value with
// no error so callers can treat "never saved" and "empty" the same way.
func LoadJSONFile[T any](path string) (T, error) {
	var zero T
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, nil
		}
		return zero, err
	}
	if err := json.Unmarshal(b, &zero); err != nil {
		return zero, err
	}
	return zero, nil
}

func SaveJSONFile(path string, v any) error {
	return save(path, v, false)
}

func SaveJSONFileIndented(path string, v any) error {
	return save(path, v, true)
}

func save(path string, v any, indent bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		b   []byte
		err error
	)
	if indent {
		b, err = json.MarshalIndent(v, "", "  ")
		if err == nil {
			b = append(b, '\n')
		}
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}

	_ = os.Remove(path) // Windows rename doesn't overwrite.
	return os.Rename(tmp, path)
}
