// Package routing selects a payment rail from instrument capabilities and
// the requested speed, prices the express fee and estimates arrival. The
// package is pure: no I/O and no clocks beyond the caller-supplied now.
package routing

import (
	"fmt"
	"time"

	"github.com/bigfin/bigfind/internal/core/errs"
	"github.com/bigfin/bigfind/internal/core/money"
)

// Rail is an underlying payment channel.
type Rail string

const (
	RailACH        Rail = "ach"
	RailSameDayACH Rail = "same_day_ach"
	RailPushToCard Rail = "push_to_card"
	RailFedNow     Rail = "fednow"
	RailRTP        Rail = "rtp"
)

// instantPriority is the scan order for instant speed, highest preference
// first.
var instantPriority = []Rail{RailRTP, RailFedNow, RailPushToCard, RailSameDayACH, RailACH}

// fallbackChains maps a selected rail to the static chain of rails to try
// after it. ACH has no fallbacks.
var fallbackChains = map[Rail][]Rail{
	RailRTP:        {RailFedNow, RailPushToCard, RailACH},
	RailFedNow:     {RailPushToCard, RailACH},
	RailPushToCard: {RailACH},
	RailSameDayACH: {RailACH},
}

// Speed is the caller-requested funding speed.
type Speed string

const (
	SpeedStandard Speed = "standard"
	SpeedInstant  Speed = "instant"
)

// Direction distinguishes money moving to the customer (credit) from money
// collected from the customer (debit).
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// InstrumentType is the kind of external funding instrument.
type InstrumentType string

const (
	InstrumentBankAccount InstrumentType = "BANK_ACCOUNT"
	InstrumentDebitCard   InstrumentType = "DEBIT_CARD"
)

// Capabilities is what the router needs to know about one instrument.
// SupportedRails, when non-empty, is authoritative; otherwise defaults are
// derived from the instrument type and verification state.
type Capabilities struct {
	Type           InstrumentType
	Verified       bool
	SupportedRails []Rail
}

// AvailableRails derives the usable rail set for an instrument.
func (c Capabilities) AvailableRails() map[Rail]bool {
	set := make(map[Rail]bool)
	if len(c.SupportedRails) > 0 {
		for _, r := range c.SupportedRails {
			set[r] = true
		}
		return set
	}
	switch c.Type {
	case InstrumentBankAccount:
		if c.Verified {
			set[RailRTP] = true
			set[RailFedNow] = true
			set[RailSameDayACH] = true
			set[RailACH] = true
		} else {
			set[RailACH] = true
		}
	case InstrumentDebitCard:
		set[RailPushToCard] = true
	}
	return set
}

// Request is one routing decision input.
type Request struct {
	Speed       Speed
	Direction   Direction
	AmountCents money.Cents
	Source      Capabilities
	Destination *Capabilities
	Now         time.Time
}

// Decision is the routing outcome.
type Decision struct {
	Rail             Rail
	EstimatedArrival time.Time
	FeeCents         money.Cents
	FallbackRails    []Rail
	Reason           string
}

// Engine performs rail selection and fee calculation.
type Engine struct {
	fees    FeeSchedule
	arrival ArrivalEstimator
}

// NewEngine creates a routing engine with the given fee schedule and
// business-hours configuration.
func NewEngine(fees FeeSchedule, arrival ArrivalEstimator) *Engine {
	return &Engine{fees: fees, arrival: arrival}
}

// EstimateArrival exposes the arrival estimate for a specific rail, for
// callers that settle on a fallback rail after the initial decision.
func (e *Engine) EstimateArrival(rail Rail, now time.Time) time.Time {
	return e.arrival.Estimate(rail, now)
}

// Route picks a rail for the request. For credit transfers the destination
// instrument constrains rail choice; for debits the source does.
func (e *Engine) Route(req Request) (*Decision, error) {
	relevant := req.Source
	if req.Direction == DirectionCredit {
		if req.Destination == nil {
			return nil, errs.InvalidRequest("credit routing requires a destination instrument")
		}
		relevant = *req.Destination
	}
	available := relevant.AvailableRails()
	if len(available) == 0 {
		return nil, errs.New(errs.CodeInstrumentInvalid, "instrument supports no rails")
	}

	switch req.Speed {
	case SpeedStandard:
		if !available[RailACH] {
			return nil, errs.New(errs.CodeInstrumentInvalid, "standard speed requires ACH support")
		}
		return &Decision{
			Rail:             RailACH,
			EstimatedArrival: e.arrival.Estimate(RailACH, req.Now),
			FeeCents:         0,
			FallbackRails:    nil,
			Reason:           "standard speed routes via ACH",
		}, nil

	case SpeedInstant:
		for _, rail := range instantPriority {
			if !available[rail] {
				continue
			}
			return &Decision{
				Rail:             rail,
				EstimatedArrival: e.arrival.Estimate(rail, req.Now),
				FeeCents:         e.fees.Fee(SpeedInstant, req.AmountCents),
				FallbackRails:    fallbacksFor(rail, available),
				Reason:           fmt.Sprintf("instant speed: %s is the fastest rail the instrument supports", rail),
			}, nil
		}
		return nil, errs.New(errs.CodeInstrumentInvalid, "no rail available for instant speed")

	default:
		return nil, errs.InvalidRequest("unknown speed %q", req.Speed)
	}
}

// fallbacksFor projects the static chain onto the available set. The
// selected rail never appears in its own fallback list.
func fallbacksFor(selected Rail, available map[Rail]bool) []Rail {
	var out []Rail
	for _, rail := range fallbackChains[selected] {
		if available[rail] {
			out = append(out, rail)
		}
	}
	return out
}
