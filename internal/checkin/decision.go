package checkin

// Outcome is the class of a scan decision.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Reason explains a denial.
type Reason string

const (
	ReasonUnknownTag    Reason = "UNKNOWN_TAG"
	ReasonAlreadyInside Reason = "ALREADY_INSIDE"
	ReasonNoCredits     Reason = "NO_CREDITS"
)

// Reader feedback hints.
const (
	BeepSuccess = "success"
	BeepError   = "long_error"
)

// Decision is the answer to a valid scan: either allowed, with a message and side data,
// or denied with a reason. Malformed scans are errors, not decisions.
type Decision struct {
	Outcome          Outcome
	Reason           Reason
	Message          string
	Name             string
	CreditsRemaining *int
}

func allowed(name, message string) Decision {
	return Decision{Outcome: OutcomeAllowed, Name: name, Message: message}
}

func denied(reason Reason, name string) Decision {
	return Decision{Outcome: OutcomeDenied, Reason: reason, Name: name}
}

// Allowed reports whether the scan was let through.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// Beep is the feedback the reader should play.
func (d Decision) Beep() string {
	if d.Allowed() {
		return BeepSuccess
	}
	return BeepError
}
