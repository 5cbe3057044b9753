// Package outbox keeps failed channel deliveries on local disk until they are
// handed to the external retry process.
//
// Records are CBOR-encoded (core deterministic encoding) in a pebble store
// under keys "delivery/<eventKey>/<channel>". The event key is stable across
// re-dispatches of the same notification, so a repeated failure overwrites
// the record and bumps its attempt count.
package outbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// -------------------- State --------------------

type State uint8

const (
	StatePending State = iota
	StateRelayed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRelayed:
		return "RELAYED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// Entry is one failed delivery. EventID is the latest failed dispatch.
type Entry struct {
	EventID     string `cbor:"eventId" json:"eventId"`
	EventKey    string `cbor:"eventKey" json:"eventKey"`
	Template    string `cbor:"template" json:"template"`
	Channel     string `cbor:"channel" json:"channel"`
	RecipientID string `cbor:"recipientId" json:"recipientId"`
	Delivery    []byte `cbor:"delivery" json:"delivery"` // JSON the retry process replays verbatim
	Error       string `cbor:"error" json:"error"`
	Attempts    uint32 `cbor:"attempts" json:"attempts"`
	State       State  `cbor:"state" json:"state"`
	FailedAt    int64  `cbor:"failedAt" json:"failedAt"`
	RelayedAt   int64  `cbor:"relayedAt,omitempty" json:"relayedAt,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("outbox: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("outbox: CBOR decoder initialization failed: " + err.Error())
	}
}

const keyPrefix = "delivery/"

func keyFor(eventKey, channel string) []byte {
	return []byte(keyPrefix + eventKey + "/" + channel)
}

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("outbox entry not found")

// -------------------- Outbox --------------------

// Outbox is safe for concurrent use; pebble serialises writers.
type Outbox struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens (or creates) an outbox in dir.
func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble.Open(%s): %w", dir, err)
	}
	return &Outbox{db: db, now: time.Now}, nil
}

func (o *Outbox) Close() error { return o.db.Close() }

// Put records a failed delivery as pending. Entries are keyed by EventKey.
func (o *Outbox) Put(e Entry) error {
	if e.EventKey == "" || e.Channel == "" {
		return fmt.Errorf("outbox entry needs an event key and a channel")
	}
	prev, err := o.Get(e.EventKey, e.Channel)
	switch {
	case err == nil:
		e.Attempts = prev.Attempts + 1
	case errors.Is(err, ErrNotFound):
		e.Attempts = 1
	default:
		return err
	}
	e.State = StatePending
	e.RelayedAt = 0
	if e.FailedAt == 0 {
		e.FailedAt = o.now().UnixNano()
	}
	return o.write(e)
}

// Get returns the entry for one event channel.
func (o *Outbox) Get(eventKey, channel string) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(eventKey, channel))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	defer closer.Close()

	var e Entry
	if err := decMode.Unmarshal(val, &e); err != nil {
		return Entry{}, fmt.Errorf("decode %s/%s: %w", eventKey, channel, err)
	}
	return e, nil
}

// MarkRelayed flags an entry as handed to the retry process.
func (o *Outbox) MarkRelayed(eventKey, channel string) error {
	e, err := o.Get(eventKey, channel)
	if err != nil {
		return err
	}
	e.State = StateRelayed
	e.RelayedAt = o.now().UnixNano()
	return o.write(e)
}

// Delete removes an entry.
func (o *Outbox) Delete(eventKey, channel string) error {
	return o.db.Delete(keyFor(eventKey, channel), pebble.Sync)
}

// -------------------- Scan --------------------

// Scan calls fn for every entry in the given state, in key order. Returning
// an error from fn stops the scan.
func (o *Outbox) Scan(state State, fn func(Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(strings.TrimSuffix(keyPrefix, "/") + "0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := decMode.Unmarshal(iter.Value(), &e); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if e.State != state {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (o *Outbox) write(e Entry) error {
	val, err := encMode.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", e.EventKey, e.Channel, err)
	}
	return o.db.Set(keyFor(e.EventKey, e.Channel), val, pebble.Sync)
}
