package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/edgeflare/retailpipe/pkg/entity"
)

// Dir returns the directory holding the JSON fixtures.
func Dir() string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Dir(currentFile)
}

// LoadJSON reads and unmarshals a JSON file. If target is provided, it attempts to unmarshal the JSON into the target struct.
func LoadJSON(filename string, target ...any) (map[string]any, error) {
	var result map[string]any

	data, err := os.ReadFile(filepath.Join(Dir(), filename))
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(data, &result)
	if err != nil {
		return nil, err
	}

	if len(target) > 0 && target[0] != nil {
		err = json.Unmarshal(data, target[0])
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// LoadRecord loads <kind>.json as a record of that kind.
func LoadRecord(t testing.TB, kind entity.Kind) entity.Record {
	t.Helper()
	fields, err := LoadJSON(kind.String() + ".json")
	if err != nil {
		t.Fatalf("Failed to load %s fixture: %v", kind, err)
	}
	return entity.Record{Kind: kind, Fields: fields}
}
