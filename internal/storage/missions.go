package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/mission-console/pkg/scenario"
)

var ErrMissionNotFound = errors.New("mission not found")

// FileMissions reads mission definitions from <dataDir>/missions. Files may
// be JSON (.json) or YAML (.yaml, .yml).
type FileMissions struct {
	dataDir string
	logger  *slog.Logger
}

// Ensure FileMissions implements MissionStore
var _ MissionStore = (*FileMissions)(nil)

func NewFileMissions(dataDir string, logger *slog.Logger) *FileMissions {
	if dataDir == "" {
		dataDir = "./data"
	}
	return &FileMissions{dataDir: dataDir, logger: logger}
}

func (f *FileMissions) missionsDir() string {
	return filepath.Join(f.dataDir, "missions")
}

// ListMissions maps mission names to file names for the top level of the
// missions directory only; GetMission resolves by base name, so nested files
// are not listed. Files that fail to parse or validate are skipped. When two
// files declare the same name the first in lexical order wins.
func (f *FileMissions) ListMissions(ctx context.Context) (map[string]string, error) {
	missions := make(map[string]string)
	root := f.missionsDir()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return nil
		}
		if d.IsDir() {
			if path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !IsMissionFile(path) {
			return nil
		}

		s, err := LoadMissionFile(path)
		if err != nil {
			f.logger.Warn("Skipping mission file", "path", path, "error", err)
			return nil
		}

		if existing, ok := missions[s.Name]; ok {
			f.logger.Warn("Duplicate mission name", "name", s.Name, "kept", existing, "skipped", filepath.Base(path))
			return nil
		}
		missions[s.Name] = filepath.Base(path)
		return nil
	})
	if err != nil {
		f.logger.Error("Failed to walk missions directory", "error", err)
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}

	return missions, nil
}

func (f *FileMissions) GetMission(ctx context.Context, filename string) (*scenario.Scenario, error) {
	path := filepath.Join(f.missionsDir(), filepath.Base(filename))
	f.logger.Debug("Loading mission", "filename", filename, "full_path", path)

	s, err := LoadMissionFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissionNotFound, filename)
		}
		return nil, err
	}
	return s, nil
}

// IsMissionFile reports whether path has a mission file extension.
func IsMissionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadMissionFile parses and validates a single mission definition.
func LoadMissionFile(path string) (*scenario.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission file: %w", err)
	}

	s, err := ParseMission(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	s.FileName = filepath.Base(path)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseMission decodes a mission definition by file extension. JSON is
// decoded strictly so misspelled fields are caught.
func ParseMission(data []byte, ext string) (*scenario.Scenario, error) {
	var s scenario.Scenario

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to parse mission YAML: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to parse mission JSON: %w", err)
		}
	}

	return &s, nil
}
