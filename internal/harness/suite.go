package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SuiteResult summarizes running every scenario in a directory.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// ScenarioFiles returns the *.yaml and *.yml files directly in dir, sorted.
func ScenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunDir loads and runs every scenario in dir. Load and execution failures
// are reported per scenario; only an unreadable directory is an error.
func RunDir(dir string) (*SuiteResult, error) {
	paths, err := ScenarioFiles(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	fail := func(path, msg string) {
		result.Failed++
		result.Failures = append(result.Failures, ScenarioFailure{ScenarioPath: path, Error: msg})
	}

	for _, path := range paths {
		result.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			fail(path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}
		runResult, err := Run(scenario)
		if err != nil {
			fail(path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !runResult.Pass {
			fail(path, fmt.Sprintf("scenario assertions failed: %v", runResult.Errors))
			continue
		}
		result.Passed++
	}
	return result, nil
}
