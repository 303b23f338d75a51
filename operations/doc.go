/*
Package operations executes side-effecting console actions in a structured, traceable manner.

An Operation pairs a versioned Definition with a handler that performs at most one side effect,
such as submitting a transaction. Every execution produces a Report holding the input, output
and error, which is stored by a Reporter so that the console can list what was submitted.

Operations are never retried: a failed write is reported and surfaced to the operator as is.

# Basic Usage

	op := operations.NewOperation(
		"panel-submit", semver.MustParse("1.0.0"), "Submit a contract write", handler,
	)

	bundle := operations.NewBundle(ctxFn, lggr, operations.NewMemoryReporter())
	report, err := operations.ExecuteOperation(bundle, op, deps, input)
*/
package operations
