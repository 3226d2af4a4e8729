package version

import "errors"

// ErrRollbackUnavailable means a service has no distinct previous version to
// roll back to. It is reported per service, never swallowed.
var ErrRollbackUnavailable = errors.New("no previous version available")

// Result is the per-service outcome of an operation: prior version,
// resulting version (prior again when unchanged) and the failure cause if
// any.
type Result struct {
	Service     string
	PriorTag    string
	PriorDigest string
	NewTag      string
	NewDigest   string
	Changed     bool
	// Skipped counts duplicate history entries passed over while searching
	// for a rollback target.
	Skipped  int
	Warnings []string
	Err      error
	// RevertErr is set when safe-update's automatic rollback itself failed;
	// it is reported in addition to Err, never conflated with success.
	RevertErr error
	Reverted  bool
}

func (r *Result) warnf(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Report aggregates per-service results, distinguishing full success,
// partial success and failure.
type Report struct {
	Results []Result
}

// OK reports whether every service succeeded.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if res.Err != nil || res.RevertErr != nil {
			return false
		}
	}
	return true
}

// Partial reports whether some services succeeded and some failed.
func (r *Report) Partial() bool {
	var ok, failed bool
	for _, res := range r.Results {
		if res.Err != nil || res.RevertErr != nil {
			failed = true
		} else {
			ok = true
		}
	}
	return ok && failed
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil || res.RevertErr != nil {
			out = append(out, res)
		}
	}
	return out
}

// Changed reports whether any service's current version moved.
func (r *Report) AnyChanged() bool {
	for _, res := range r.Results {
		if res.Changed {
			return true
		}
	}
	return false
}
