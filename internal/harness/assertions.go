package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// EvaluateExpectations checks a result against a scenario's expectations and
// returns one message per failure, in a stable order.
func EvaluateExpectations(result *Result, expect Expectations) []string {
	var failures []string

	// Sort stream names for deterministic error ordering
	names := make([]string, 0, len(expect.Streams))
	for name := range expect.Streams {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want := expect.Streams[name]
		got := result.StreamTypes(name)
		if !slices.Equal(want, got) {
			failures = append(failures, fmt.Sprintf("stream %s: expected [%s], got [%s]",
				name, strings.Join(want, ", "), strings.Join(got, ", ")))
		}
	}

	if len(result.Parked) != expect.Parked {
		var details []string
		for _, p := range result.Parked {
			details = append(details, fmt.Sprintf("%s: %s@%s: %s", p.Subscription, p.Type, p.Stream, p.Reason))
		}
		msg := fmt.Sprintf("parked: expected %d, got %d", expect.Parked, len(result.Parked))
		if len(details) > 0 {
			msg += " (" + strings.Join(details, "; ") + ")"
		}
		failures = append(failures, msg)
	}

	return failures
}
