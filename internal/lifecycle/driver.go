// Package lifecycle advances auctions through pending, active and completed
// on a timer and sweeps escrow payments whose deadline has passed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

const (
	DefaultAdvanceInterval = 15 * time.Second
	DefaultSweepInterval   = 30 * time.Second
	DefaultBatchBudget     = 60 * time.Second
	DefaultBatchLimit      = 100
)

// Escrow is the part of the escrow manager the driver needs.
type Escrow interface {
	OpenTx(ctx context.Context, tx repository.Tx, a models.Auction) (models.Payment, error)
	Opened(ctx context.Context, p models.Payment)
	FinalizeDue(ctx context.Context, paymentID string) (bool, error)
}

// StatusNotifier tells auction watchers about a status change.
type StatusNotifier interface {
	AuctionStatusChanged(auctionID string, status models.AuctionStatus)
}

type Config struct {
	AdvanceInterval time.Duration
	SweepInterval   time.Duration
	BatchBudget     time.Duration
	BatchLimit      int
}

func (c Config) withDefaults() Config {
	if c.AdvanceInterval <= 0 {
		c.AdvanceInterval = DefaultAdvanceInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.BatchBudget <= 0 {
		c.BatchBudget = DefaultBatchBudget
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = DefaultBatchLimit
	}
	return c
}

// Driver runs the two periodic jobs. Each job runs serially; every auction or
// payment is advanced in its own transaction, so stopping mid-batch is safe.
type Driver struct {
	store  repository.Store
	escrow Escrow
	status StatusNotifier
	cfg    Config
	now    func() time.Time
}

func NewDriver(store repository.Store, escrow Escrow, status StatusNotifier, cfg Config) *Driver {
	return &Driver{
		store:  store,
		escrow: escrow,
		status: status,
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (d *Driver) WithClock(now func() time.Time) *Driver {
	d.now = now
	return d
}

// Run blocks until ctx ends.
func (d *Driver) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.every(ctx, d.cfg.AdvanceInterval, "advance_auctions", d.AdvanceAuctions)
	}()
	go func() {
		defer wg.Done()
		d.every(ctx, d.cfg.SweepInterval, "sweep_escrow", d.SweepEscrow)
	}()
	utils.Info("lifecycle driver started", map[string]any{
		"advance_interval": d.cfg.AdvanceInterval.String(),
		"sweep_interval":   d.cfg.SweepInterval.String(),
	})
	wg.Wait()
	utils.Info("lifecycle driver stopped", nil)
}

func (d *Driver) every(ctx context.Context, interval time.Duration, job string, run func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batchCtx, cancel := context.WithTimeout(ctx, d.cfg.BatchBudget)
			n, err := run(batchCtx)
			cancel()
			if err != nil {
				utils.Error("lifecycle job failed", map[string]any{"job": job, "processed": n, "error": err.Error()})
			} else if n > 0 {
				utils.Info("lifecycle job done", map[string]any{"job": job, "processed": n})
			}
		}
	}
}

// AdvanceAuctions moves every due auction one step and returns how many moved.
func (d *Driver) AdvanceAuctions(ctx context.Context) (int, error) {
	ids, err := d.store.FindDueAuctions(ctx, d.now(), d.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: find due auctions: %w", err)
	}
	moved := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
		ok, err := d.advance(ctx, id)
		if err != nil {
			utils.Error("lifecycle: advance failed", map[string]any{"auction_id": id, "error": err.Error()})
			continue
		}
		if ok {
			moved++
		}
	}
	return moved, nil
}

// advance re-reads the auction under lock and applies the transition that is
// still due, if any.
func (d *Driver) advance(ctx context.Context, auctionID string) (bool, error) {
	var (
		to      models.AuctionStatus
		payment *models.Payment
	)
	err := d.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		now := d.now()
		switch {
		case a.Status == models.AuctionPending && !a.StartAt.After(now):
			to = models.AuctionActive
		case a.Status == models.AuctionActive && !a.EndAt.After(now):
			to = models.AuctionCompleted
		default:
			return nil
		}
		if !a.Status.CanTransition(to) {
			return fmt.Errorf("%w - %s to %s", biddingerrors.ErrInvalidTransition, a.Status, to)
		}
		a.Status = to
		a.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, a); err != nil {
			return err
		}
		if to != models.AuctionCompleted {
			return nil
		}
		p, err := d.escrow.OpenTx(ctx, tx, a)
		if errors.Is(err, biddingerrors.ErrNoBids) {
			return nil
		}
		if err != nil {
			return err
		}
		payment = &p
		return nil
	})
	if err != nil {
		return false, err
	}
	if to == "" {
		return false, nil
	}

	metrics.AuctionTransition(string(to))
	utils.Info("auction advanced", map[string]any{"auction_id": auctionID, "status": to, "has_winner": payment != nil})
	if d.status != nil {
		d.status.AuctionStatusChanged(auctionID, to)
	}
	if payment != nil {
		d.escrow.Opened(ctx, *payment)
	}
	return true, nil
}

// SweepEscrow closes every open or refunding payment past its deadline.
func (d *Driver) SweepEscrow(ctx context.Context) (int, error) {
	ids, err := d.store.FindDuePayments(ctx, d.now(), d.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: find due payments: %w", err)
	}
	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		ok, err := d.escrow.FinalizeDue(ctx, id)
		if err != nil {
			utils.Error("lifecycle: finalize failed", map[string]any{"payment_id": id, "error": err.Error()})
			continue
		}
		if ok {
			done++
		}
	}
	return done, nil
}
