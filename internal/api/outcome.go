package api

import (
	"net/http"

	"shopifyapp/internal/metrics"
)

type OutcomeKind int

const (
	Allow OutcomeKind = iota
	Redirect
	Reject
)

func (k OutcomeKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	}
	return "reject"
}

// AuthOutcome is a guard's decision for one request.
type AuthOutcome struct {
	Kind     OutcomeKind
	Location string
	Status   int
	Code     string
	Message  string
	// Reason names the check that decided a non-Allow outcome.
	Reason string
}

func allow() AuthOutcome {
	return AuthOutcome{Kind: Allow}
}

func redirectTo(location, reason string) AuthOutcome {
	return AuthOutcome{Kind: Redirect, Location: location, Reason: reason}
}

func reject(status int, code, message string) AuthOutcome {
	return AuthOutcome{Kind: Reject, Status: status, Code: code, Message: message, Reason: code}
}

// write renders a Redirect or Reject outcome and records it.
func (o AuthOutcome) write(w http.ResponseWriter, r *http.Request, guard string) {
	metrics.IncAuthOutcome(guard, o.Kind.String())
	switch o.Kind {
	case Redirect:
		FullPageRedirect(w, r, o.Location)
	case Reject:
		WriteError(w, o.Status, o.Code, o.Message)
	}
}
