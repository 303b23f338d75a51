package panel

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/contract-admin/chain/evm"
	"github.com/smartcontractkit/contract-admin/operations"
)

// SubmitInput is the recorded input of a submitted action.
type SubmitInput struct {
	Panel    string            `json:"panel"`
	Contract common.Address    `json:"contract"`
	Method   string            `json:"method"`
	Inputs   map[string]string `json:"inputs"`
}

// TxResult is the outcome of a submitted action.
type TxResult struct {
	Panel       string         `json:"panel"`
	Method      string         `json:"method"`
	Hash        common.Hash    `json:"hash"`
	From        common.Address `json:"from"`
	Block       uint64         `json:"block,omitempty"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

type submitDeps struct {
	chain    evm.Chain
	contract *bind.BoundContract
	args     []any
}

// SubmitOperationID identifies the reports of submitted actions.
const SubmitOperationID = "panel-submit"

// submitOp sends a panel action as a transaction signed by the admin key and waits for it
// to be confirmed. It performs exactly one write.
var submitOp = operations.NewOperation(
	SubmitOperationID,
	semver.MustParse("1.0.0"),
	"Submit a panel action as a transaction and wait for confirmation",
	func(b operations.Bundle, deps submitDeps, input SubmitInput) (TxResult, error) {
		res := TxResult{
			Panel:       input.Panel,
			Method:      input.Method,
			From:        deps.chain.AdminKey.From,
			SubmittedAt: time.Now().UTC(),
		}

		opts := *deps.chain.AdminKey
		opts.Context = b.GetContext()
		tx, err := deps.contract.Transact(&opts, input.Method, deps.args...)
		if err != nil {
			return res, fmt.Errorf("failed to send %s transaction: %w", input.Method, err)
		}
		res.Hash = tx.Hash()
		b.Logger.Infow("Transaction sent",
			"panel", input.Panel, "method", input.Method, "tx", tx.Hash().Hex(), "chain", deps.chain.String())

		block, err := deps.chain.Confirm(tx)
		if err != nil {
			return res, fmt.Errorf("failed to confirm %s transaction %s: %w", input.Method, tx.Hash().Hex(), err)
		}
		res.Block = block

		return res, nil
	},
)

// Submit validates the inputs of action, sends it as a transaction, waits for confirmation
// and refreshes the panel. Invalid inputs are returned as ValidationErrors and nothing is
// sent. Writes are never retried.
func (p *Panel) Submit(ctx context.Context, action string, inputs map[string]string) (TxResult, error) {
	if err := p.Err(); err != nil {
		return TxResult{}, err
	}

	a, ok := p.def.Action(action)
	if !ok {
		return TxResult{}, fmt.Errorf("%w %q for %s", ErrUnknownAction, action, p.def.Title)
	}
	method, ok := p.abi.Methods[a.Method]
	if !ok {
		return TxResult{}, fmt.Errorf("%w %q for %s", ErrUnknownAction, action, p.def.Title)
	}

	args, verrs := p.parser.parseInputs(method, a, inputs)
	if len(verrs) > 0 {
		return TxResult{}, verrs
	}
	if p.chain.ReadOnly() {
		return TxResult{}, ErrReadOnly
	}
	if p.chain.Confirm == nil {
		return TxResult{}, fmt.Errorf("chain %s has no confirm function", p.chain)
	}

	b := operations.NewBundle(func() context.Context { return ctx }, p.lggr, p.reporter)
	input := SubmitInput{
		Panel:    p.def.Key,
		Contract: p.address,
		Method:   a.Method,
		Inputs:   inputs,
	}
	report, err := operations.ExecuteOperation(b, submitOp, submitDeps{
		chain:    p.chain,
		contract: p.contract,
		args:     args,
	}, input)

	res := report.Output
	if res.Method == "" {
		res.Panel, res.Method, res.SubmittedAt = p.def.Key, a.Method, time.Now().UTC()
	}
	if err != nil {
		res.Error = err.Error()
		p.lggr.Errorw("Action failed", "method", a.Method, "error", err)
	}

	p.mu.Lock()
	p.lastTx = &res
	p.mu.Unlock()

	if err != nil {
		return res, err
	}

	if rerr := p.Refresh(ctx); rerr != nil {
		p.lggr.Warnw("Refresh after submit failed", "error", rerr)
	}

	return res, nil
}
