package operations

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smartcontractkit/contract-admin/pkg/logger"
)

var ErrNotSerializable = errors.New("data cannot be recorded in a report without data lost, " +
	"avoid type that can't be serialized")

// ExecuteOperation executes an operation with the given input and dependencies and records
// the outcome with the bundle's Reporter. A failed execution is recorded too, and its error
// is returned unchanged.
//
// The input and output must be JSON serializable, see IsSerializable.
func ExecuteOperation[IN, OUT, DEP any](
	b Bundle,
	operation *Operation[IN, OUT, DEP],
	deps DEP,
	input IN,
) (Report[IN, OUT], error) {
	if !IsSerializable(b.Logger, input) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s input: %w", operation.def.ID, ErrNotSerializable)
	}

	output, err := operation.execute(b, deps, input)
	if err == nil && !IsSerializable(b.Logger, output) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s output: %w", operation.def.ID, ErrNotSerializable)
	}

	report := NewReport(operation.def, input, output, err)
	if rerr := b.reporter.AddReport(genericReport(report)); rerr != nil {
		return Report[IN, OUT]{}, rerr
	}

	if err != nil {
		return report, err
	}

	return report, nil
}

// IsSerializable returns true if v can be marshalled to JSON.
func IsSerializable(lggr logger.Logger, v any) bool {
	if _, err := json.Marshal(v); err != nil {
		lggr.Errorw("Value is not serializable", "type", fmt.Sprintf("%T", v), "error", err)

		return false
	}

	return true
}
