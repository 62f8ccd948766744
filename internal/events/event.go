// Package events records what pools and farms did. Pools and farms hand
// events to a Publisher; the Dispatcher fans them out to sinks.
package events

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind names an event type.
type Kind string

const (
	KindMint          Kind = "mint"
	KindBurn          Kind = "burn"
	KindSwap          Kind = "swap"
	KindFeeWithdrawal Kind = "fee_withdrawal"
	KindFeeUpdate     Kind = "fee_update"
	KindOwnership     Kind = "ownership"
	KindStake         Kind = "stake"
	KindUnstake       Kind = "unstake"
	KindClaim         Kind = "claim"
	KindFund          Kind = "fund"
	KindPause         Kind = "pause"
)

// Event is one observable state change. Amounts in Attrs are base-10
// strings.
type Event struct {
	ID     common.Hash       `json:"id"`
	Source common.Address    `json:"source"`
	Seq    uint64            `json:"seq"`
	Kind   Kind              `json:"kind"`
	Actor  common.Address    `json:"actor"`
	Time   time.Time         `json:"time"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// New builds an event and derives its ID from source, seq and kind.
func New(source common.Address, seq uint64, kind Kind, actor common.Address, at time.Time, attrs map[string]string) Event {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	return Event{
		ID:     crypto.Keccak256Hash(source.Bytes(), seqBytes[:], []byte(kind)),
		Source: source,
		Seq:    seq,
		Kind:   kind,
		Actor:  actor,
		Time:   at.UTC(),
		Attrs:  attrs,
	}
}

// Publisher accepts events from pools and farms. Publish must not block on
// I/O because callers hold their state lock.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})

// Sink stores or reacts to events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Reader lists stored events of one source, newest first.
type Reader interface {
	List(ctx context.Context, source common.Address, limit int) ([]Event, error)
}
