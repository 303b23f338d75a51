package panel

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartcontractkit/contract-admin/roles"
)

// DefaultEventLogSize is the number of events a panel keeps.
const DefaultEventLogSize = 100

// Event is a decoded contract event.
type Event struct {
	Panel       string            `json:"panel"`
	Name        string            `json:"name"`
	BlockNumber uint64            `json:"blockNumber"`
	TxHash      common.Hash       `json:"txHash"`
	LogIndex    uint              `json:"logIndex"`
	Args        map[string]string `json:"args"`
	ReceivedAt  time.Time         `json:"receivedAt"`
}

// EventLog is a bounded ring of events with fan-out to subscribers.
type EventLog struct {
	mu      sync.RWMutex
	entries []Event
	next    int
	full    bool
	subs    map[int]chan Event
	nextSub int
}

// NewEventLog creates an event log keeping at most size events. A non-positive size uses
// DefaultEventLogSize.
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}

	return &EventLog{
		entries: make([]Event, size),
		subs:    make(map[int]chan Event),
	}
}

// Append adds an event, evicting the oldest when full. Subscribers that are not keeping up
// miss the event instead of blocking the log.
func (l *EventLog) Append(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}

	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Recent returns the kept events, oldest first.
func (l *EventLog) Recent() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.recentLocked()
}

func (l *EventLog) recentLocked() []Event {
	if !l.full {
		out := make([]Event, l.next)
		copy(out, l.entries[:l.next])

		return out
	}

	out := make([]Event, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)

	return out
}

// Len returns the number of kept events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.full {
		return len(l.entries)
	}

	return l.next
}

// Subscribe returns a channel receiving every event appended from now on, and a function
// releasing it. The channel is closed on release.
func (l *EventLog) Subscribe(buffer int) (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.subscribeLocked(buffer)
}

// SubscribeWithBacklog is Subscribe that also returns the kept events. Every event is either
// in the backlog or sent on the channel, never both.
func (l *EventLog) SubscribeWithBacklog(buffer int) ([]Event, <-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, release := l.subscribeLocked(buffer)

	return l.recentLocked(), ch, release
}

func (l *EventLog) subscribeLocked(buffer int) (<-chan Event, func()) {
	id := l.nextSub
	l.nextSub++
	ch := make(chan Event, buffer)
	l.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}

// eventDecoder decodes the logs of the watched events of one contract.
type eventDecoder struct {
	panel    string
	abi      abi.ABI
	events   []string
	registry *roles.Registry
}

// topics returns the filter topics selecting the watched events.
func (d eventDecoder) topics() [][]common.Hash {
	ids := make([]common.Hash, 0, len(d.events))
	for _, name := range d.events {
		if ev, ok := d.abi.Events[name]; ok {
			ids = append(ids, ev.ID)
		}
	}

	return [][]common.Hash{ids}
}

func (d eventDecoder) decode(lg types.Log) (Event, error) {
	if len(lg.Topics) == 0 {
		return Event{}, fmt.Errorf("log %s:%d has no topics", lg.TxHash.Hex(), lg.Index)
	}

	ev, err := d.abi.EventByID(lg.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("unknown event %s: %w", lg.Topics[0].Hex(), err)
	}

	values := make(map[string]any)
	if len(lg.Data) > 0 {
		if err := ev.Inputs.UnpackIntoMap(values, lg.Data); err != nil {
			return Event{}, fmt.Errorf("failed to unpack %s data: %w", ev.Name, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, lg.Topics[1:]); err != nil {
		return Event{}, fmt.Errorf("failed to parse %s topics: %w", ev.Name, err)
	}

	args := make(map[string]string, len(values))
	for i, arg := range ev.Inputs {
		name := inputName(i, arg)
		v, ok := values[arg.Name]
		if !ok {
			continue
		}
		format := FormatRaw
		if arg.Type.T == abi.FixedBytesTy && arg.Type.Size == common.HashLength && isRoleInput(name) {
			format = FormatRole
		}
		args[name] = formatValue(v, format, 0, d.registry)
	}

	return Event{
		Panel:       d.panel,
		Name:        ev.Name,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
		Args:        args,
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

// argNames returns the decoded argument names in a stable order.
func (e Event) argNames() []string {
	names := make([]string, 0, len(e.Args))
	for name := range e.Args {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// String renders the event on one line.
func (e Event) String() string {
	s := fmt.Sprintf("#%d %s", e.BlockNumber, e.Name)
	for _, name := range e.argNames() {
		s += fmt.Sprintf(" %s=%s", name, e.Args[name])
	}

	return s
}
