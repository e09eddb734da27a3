package preflight

import (
	"context"

	"nexus/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Critical bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Directory checks are critical; service checks are advisory.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		critical(CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)),
		critical(CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir)),
	}
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, critical(CheckDirectoryAccess("Blob directory", cfg.Storage.LocalDir)))
	}

	if cfg.GetLLM().APIKey != "" {
		results = append(results, CheckLLM(ctx, "Enrichment LLM", cfg.GetLLM()))
	}
	return results
}

// Failed returns the critical results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Critical && !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func critical(r Result) Result {
	r.Critical = true
	return r
}
