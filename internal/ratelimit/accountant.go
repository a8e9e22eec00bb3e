// Package ratelimit computes how much of a rate-limited coin is currently
// withdrawable and handles the descriptor a funder hands to the coin owner.
package ratelimit

import (
	"errors"
	"math/bits"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/puzzle"
)

// ErrInvalidRate is returned for a zero limit or interval.
var ErrInvalidRate = errors.New("limit and interval must be positive")

// Accountant applies the accrual rule of a rate-limited coin: Limit units
// become withdrawable per whole Interval of ledger height elapsed since the
// checkpoint. Partial intervals accrue nothing.
type Accountant struct {
	limit    uint64
	interval uint64
	logger   zerolog.Logger
}

// NewAccountant returns an accountant for the given rate.
func NewAccountant(limit, interval uint64, logger zerolog.Logger) (*Accountant, error) {
	if limit == 0 || interval == 0 {
		return nil, ErrInvalidRate
	}
	return &Accountant{limit: limit, interval: interval, logger: logger}, nil
}

// Limit returns the amount unlocked per interval.
func (a *Accountant) Limit() uint64 { return a.limit }

// Interval returns the accrual interval in blocks.
func (a *Accountant) Interval() uint64 { return a.interval }

// Accrued returns the amount unlocked at height for a coin whose clock
// started at checkpoint, ignoring the coin's value. A height below the
// checkpoint means the ledger rolled back under us; nothing is unlocked
// until the wallet resyncs.
func (a *Accountant) Accrued(height, checkpoint uint64) uint64 {
	if height < checkpoint {
		a.logger.Warn().
			Uint64("height", height).
			Uint64("checkpoint", checkpoint).
			Msg("Height below rate-limit checkpoint, treating allowance as zero")
		return 0
	}
	return puzzle.Allowance(height-checkpoint, a.limit, a.interval)
}

// Available returns the withdrawable amount at height, capped at capacity
// (the coin's value plus any deposits absorbed by the spend).
func (a *Accountant) Available(height, checkpoint, capacity uint64) uint64 {
	return min(a.Accrued(height, checkpoint), capacity)
}

// MinCoinAge returns the smallest coin age, a whole number of intervals,
// at which amount is unlocked. Saturates at MaxUint64.
func (a *Accountant) MinCoinAge(amount uint64) uint64 {
	steps := amount / a.limit
	if amount%a.limit != 0 {
		steps++
	}
	hi, lo := bits.Mul64(steps, a.interval)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}

// NextUnlock returns the first height above current at which the accrued
// amount grows. Below the checkpoint it returns the checkpoint.
func (a *Accountant) NextUnlock(height, checkpoint uint64) uint64 {
	if height < checkpoint {
		return checkpoint
	}
	elapsed := (height - checkpoint) / a.interval
	next := checkpoint + (elapsed+1)*a.interval
	if next < height {
		return ^uint64(0)
	}
	return next
}
