package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the log one record per line in append order:
//
//	<stream>@<revision> <type> <data>
//
// followed by one "parked" line per parked message.
func Snapshot(result *Result) []byte {
	var b strings.Builder
	for _, r := range result.Records {
		fmt.Fprintf(&b, "%s@%d %s %s\n", r.Stream, r.Revision, r.Type, r.Data)
	}
	for _, p := range result.Parked {
		fmt.Fprintf(&b, "parked %s %s@%s %s\n", p.Subscription, p.Type, p.Stream, p.Reason)
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its log against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the log doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(result))
}
