package classify

type State int

const (
	Idle State = iota
	Extracting
	SelectingSheet
	Saving
	Classified
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Extracting:
		return "extracting"
	case SelectingSheet:
		return "selecting_sheet"
	case Saving:
		return "saving"
	case Classified:
		return "classified"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type FailureKind int

const (
	NoFailure FailureKind = iota
	// the post could not be identified, nothing is shown to the user.
	FailureSilent
	// the credential was rejected, the repair surface was requested.
	FailureAuth
	// the call failed for another reason and may be retried.
	FailureRetryable
)

func (k FailureKind) String() string {
	switch k {
	case FailureSilent:
		return "silent"
	case FailureAuth:
		return "auth"
	case FailureRetryable:
		return "retryable"
	}
	return "none"
}

// post is the workflow state of one like control.
type post struct {
	state   State
	failure FailureKind
	// set while a picker is open or a call is outstanding.
	inFlight   bool
	classified bool
	sheet      string
	// bumped on every new interaction and on dismissal, ui effects of an
	// older generation are dropped.
	generation int
}
