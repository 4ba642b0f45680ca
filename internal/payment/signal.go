package payment

import "strings"

// Signal is the closed set of meanings a gateway notification can carry.
// All vocabulary matching happens in NormalizeSignal; the reconciliation
// policy only ever sees one of these four values.
type Signal string

const (
	SignalPaid     Signal = "paid"
	SignalCanceled Signal = "canceled"
	SignalExpired  Signal = "expired"
	SignalUnknown  Signal = "unknown"
)

var paidWords = map[string]bool{
	"paid":      true,
	"success":   true,
	"succeeded": true,
	"completed": true,
}

// NormalizeSignal folds the gateway's mixed status vocabularies into one
// signal: the numeric "00" code, free-text paid/success words, or an
// explicit success flag all mean paid; cancel- and expire-shaped words map
// to their signals; anything else is unknown.
func NormalizeSignal(code, status string, success *bool) Signal {
	if code == "00" {
		return SignalPaid
	}

	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case paidWords[s]:
		return SignalPaid
	case strings.Contains(s, "cancel"):
		return SignalCanceled
	case strings.Contains(s, "expire") || strings.Contains(s, "timeout"):
		return SignalExpired
	}

	if success != nil && *success {
		return SignalPaid
	}

	return SignalUnknown
}
