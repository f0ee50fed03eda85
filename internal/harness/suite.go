package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SuiteResult is the outcome of one scenario file.
type SuiteResult struct {
	Path   string  `json:"path"`
	Name   string  `json:"name,omitempty"`
	Result *Result `json:"result,omitempty"`
	Err    string  `json:"error,omitempty"`
}

// Passed reports whether the scenario loaded, ran and passed.
func (s SuiteResult) Passed() bool {
	return s.Err == "" && s.Result != nil && s.Result.Pass
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario directory: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario under dir. Load and execution
// errors are recorded per file; the returned error is only for scanning.
func RunSuite(ctx context.Context, dir string, opts ...Option) ([]SuiteResult, error) {
	files, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}

	results := make([]SuiteResult, 0, len(files))
	for _, path := range files {
		sr := SuiteResult{Path: path}
		scenario, err := LoadScenario(path)
		if err != nil {
			sr.Err = err.Error()
			results = append(results, sr)
			continue
		}
		sr.Name = scenario.Name

		res, err := Run(ctx, scenario, opts...)
		if err != nil {
			sr.Err = err.Error()
		}
		sr.Result = res
		results = append(results, sr)
	}
	return results, nil
}
