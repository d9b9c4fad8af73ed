package orchestrator

// ProceedToExecute decides the edge after Validate. It returns false, looping
// back to Generate, only while some failing check is retryable and the
// validate budget remains.
func ProceedToExecute(s State) bool {
	v, ok := s.LatestValidation()
	if !ok || v.Passed() {
		return true
	}
	if !anyRetryable(v.Failures()) {
		return true
	}
	limit := s.LoopMax
	if s.ValidateLoopMax > 0 {
		limit = min(s.ValidateLoopMax, s.LoopMax)
	}
	return s.LoopCount >= limit
}

// ProceedToExplain decides the edge after Execute. It returns false, looping
// back to Generate, only for a retryable failure with budget remaining.
func ProceedToExplain(s State) bool {
	e, ok := s.LatestExecution()
	if !ok {
		return true
	}
	switch e.Status {
	case ExecSuccess, ExecSkipped:
		return true
	}
	if e.Classification == nil || !e.Classification.Category.Retryable() {
		return true
	}
	return s.LoopCount >= s.LoopMax
}

func anyRetryable(checks []CheckResult) bool {
	for _, c := range checks {
		if c.Classification != nil && c.Classification.Category.Retryable() {
			return true
		}
	}
	return false
}

// nextNode returns the node to run after current, or done when the run has
// reached a terminal state.
func nextNode(current NodeTag, s State) (next NodeTag, done bool) {
	if s.FinishEarly {
		return "", true
	}
	switch current {
	case NodeParse:
		return NodeGenerate, false
	case NodeGenerate:
		return NodeValidate, false
	case NodeValidate:
		if ProceedToExecute(s) {
			return NodeExecute, false
		}
		return NodeGenerate, false
	case NodeExecute:
		if ProceedToExplain(s) {
			return NodeExplain, false
		}
		return NodeGenerate, false
	default:
		return "", true
	}
}
