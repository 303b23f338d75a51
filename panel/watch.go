package panel

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

const defaultPollInterval = 4 * time.Second

// Watch appends the panel's events to its event log until ctx is done. It subscribes to the
// contract logs and falls back to polling when the endpoint does not support notifications.
// A failed subscription is recorded on the panel and returned; it is not retried.
func (p *Panel) Watch(ctx context.Context) error {
	if err := p.Err(); err != nil {
		return err
	}
	if len(p.def.Events) == 0 {
		return nil
	}

	dec := p.decoder()
	q := ethereum.FilterQuery{
		Addresses: []common.Address{p.address},
		Topics:    dec.topics(),
	}

	logs := make(chan types.Log, 64)
	sub, err := p.chain.Client.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		if errors.Is(err, rpc.ErrNotificationsUnsupported) {
			p.lggr.Infow("Endpoint does not support subscriptions, polling for events", "interval", p.pollInterval)

			return p.poll(ctx, q, dec)
		}

		return p.watchFailed(fmt.Errorf("failed to subscribe to %s events: %w", p.def.Title, err))
	}
	defer sub.Unsubscribe()

	p.setWatchErr("")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				return nil
			}

			return p.watchFailed(fmt.Errorf("%s event subscription failed: %w", p.def.Title, err))
		case lg := <-logs:
			p.handleLog(dec, lg)
		}
	}
}

// PastEvents returns the panel's events emitted in the last blocks blocks, oldest first.
// A zero count searches the latest block only. Logs that fail to decode are skipped.
func (p *Panel) PastEvents(ctx context.Context, blocks uint64) ([]Event, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}
	if len(p.def.Events) == 0 {
		return nil, nil
	}

	head, err := p.chain.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	latest := head.Number.Uint64()
	blocks = max(blocks, 1)
	from := uint64(0)
	if blocks <= latest {
		from = latest - blocks + 1
	}

	dec := p.decoder()
	logs, err := p.chain.Client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{p.address},
		Topics:    dec.topics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s events: %w", p.def.Title, err)
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := dec.decode(lg)
		if err != nil {
			p.lggr.Warnw("Failed to decode event", "tx", lg.TxHash.Hex(), "error", err)
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

func (p *Panel) decoder() eventDecoder {
	return eventDecoder{panel: p.def.Key, abi: p.abi, events: p.def.Events, registry: p.registry}
}

func (p *Panel) poll(ctx context.Context, q ethereum.FilterQuery, dec eventDecoder) error {
	head, err := p.chain.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return p.watchFailed(fmt.Errorf("failed to get latest block: %w", err))
	}
	from := head.Number.Uint64() + 1

	p.setWatchErr("")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		head, err := p.chain.Client.HeaderByNumber(ctx, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return p.watchFailed(fmt.Errorf("failed to get latest block: %w", err))
		}
		latest := head.Number.Uint64()
		if latest < from {
			continue
		}

		q.FromBlock = new(big.Int).SetUint64(from)
		q.ToBlock = new(big.Int).SetUint64(latest)
		logs, err := p.chain.Client.FilterLogs(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return p.watchFailed(fmt.Errorf("failed to filter %s events: %w", p.def.Title, err))
		}
		for _, lg := range logs {
			p.handleLog(dec, lg)
		}
		from = latest + 1
	}
}

func (p *Panel) handleLog(dec eventDecoder, lg types.Log) {
	if lg.Removed {
		return
	}

	ev, err := dec.decode(lg)
	if err != nil {
		p.lggr.Warnw("Failed to decode event", "tx", lg.TxHash.Hex(), "error", err)
		return
	}
	p.events.Append(ev)
}

func (p *Panel) watchFailed(err error) error {
	p.lggr.Errorw("Event watch stopped", "error", err)
	p.setWatchErr(err.Error())

	return err
}

func (p *Panel) setWatchErr(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchErr = msg
}
