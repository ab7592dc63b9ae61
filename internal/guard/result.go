package guard

type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusSkipped StepStatus = "skipped"
	StatusFailed  StepStatus = "failed"
)

// StepResult reports what happened to one part of a decision.
type StepResult struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

func stepOK(step, reason string) StepResult {
	return StepResult{Step: step, Status: StatusOK, Reason: reason}
}

func stepSkipped(step, reason string) StepResult {
	return StepResult{Step: step, Status: StatusSkipped, Reason: reason}
}

func stepFailed(step string, err error) StepResult {
	return StepResult{Step: step, Status: StatusFailed, Reason: err.Error()}
}

// Failed returns the failed results only.
func Failed(results []StepResult) []StepResult {
	var out []StepResult
	for _, r := range results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}
