package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/mission-console/internal/storage"
	"github.com/jwebster45206/mission-console/pkg/scenario"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <mission.json|mission.yaml|dir>...\n", os.Args[0])
		os.Exit(1)
	}

	files, err := collectFiles(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, filename := range files {
		validator := &MissionValidator{}
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed++
			continue
		}
		for _, w := range validator.warnings {
			fmt.Printf("%s\n", w)
		}
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d mission files failed validation\n", failed, len(files))
		os.Exit(1)
	}

	fmt.Printf("%d mission file(s) valid!\n", len(files))
}

// collectFiles expands directories into the mission files they contain.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && storage.IsMissionFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no mission files found")
	}
	return files, nil
}

type MissionValidator struct {
	errors   []string
	warnings []string
}

func (v *MissionValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !storage.IsMissionFile(baseName) {
		return fmt.Errorf("mission file must have a .json, .yaml or .yml extension: %s", baseName)
	}

	ext := filepath.Ext(baseName)
	nameWithoutExt := strings.TrimSuffix(baseName, ext)
	if !isValidMissionFilename(nameWithoutExt) {
		return fmt.Errorf("mission filename '%s' must be lowercase snake_case (e.g., my_mission.json, not my-mission.json or MyMission.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	v.errors = nil
	v.warnings = nil

	s, err := storage.ParseMission(data, ext)
	if err != nil {
		return fmt.Errorf("file %s failed strict unmarshaling: %w", filename, err)
	}

	v.validateMission(s, filename)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

func (v *MissionValidator) validateMission(s *scenario.Scenario, filename string) {
	if err := s.Validate(); err != nil {
		detail := strings.TrimPrefix(err.Error(), scenario.ErrInvalidScenario.Error()+": ")
		for _, problem := range strings.Split(detail, "; ") {
			v.addError(problem)
		}
	}

	if strings.TrimSpace(s.Story) == "" {
		v.addError("story is required; it is the briefing sent to the model")
	}
	if s.ID == "" {
		v.addWarning(filename, "id is empty; runs will be saved without a mission id")
	}
	if strings.TrimSpace(s.OpeningPrompt) == "" {
		v.addWarning(filename, "opening_prompt is empty; the player starts with no scene")
	}
	for _, o := range s.Objectives {
		if strings.TrimSpace(o.Description) == "" {
			v.addWarning(filename, fmt.Sprintf("objective '%s' has no description; the model sees only its title", o.ID))
		}
	}
}

func (v *MissionValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

func (v *MissionValidator) addWarning(filename, msg string) {
	v.warnings = append(v.warnings, fmt.Sprintf("warning: %s: %s", filepath.Base(filename), msg))
}

var validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidMissionFilename(name string) bool {
	// Allow 'x.' prefix for experimental missions
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
