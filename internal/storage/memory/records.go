package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bigfin/bigfind/internal/core/contract"
	"github.com/bigfin/bigfind/internal/core/recon"
	"github.com/bigfin/bigfind/internal/core/routing"
	"github.com/bigfin/bigfind/internal/core/transfer"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneContract(c contract.Contract) contract.Contract {
	c.DisbursedAt = cloneTime(c.DisbursedAt)
	c.PaidOffAt = cloneTime(c.PaidOffAt)
	return c
}

func cloneDisbursement(d transfer.Disbursement) transfer.Disbursement {
	d.HeldUntil = cloneTime(d.HeldUntil)
	d.InitiatedAt = cloneTime(d.InitiatedAt)
	d.CompletedAt = cloneTime(d.CompletedAt)
	d.FailedAt = cloneTime(d.FailedAt)
	return d
}

func cloneRepayment(p transfer.Repayment) transfer.Repayment {
	p.HeldUntil = cloneTime(p.HeldUntil)
	p.ScheduledFor = cloneTime(p.ScheduledFor)
	p.InitiatedAt = cloneTime(p.InitiatedAt)
	p.CompletedAt = cloneTime(p.CompletedAt)
	p.FailedAt = cloneTime(p.FailedAt)
	return p
}

func cloneInstrument(f transfer.FundingInstrument) transfer.FundingInstrument {
	f.SupportedRails = append([]routing.Rail(nil), f.SupportedRails...)
	return f
}

func cloneRun(r recon.Run) recon.Run {
	r.FinishedAt = cloneTime(r.FinishedAt)
	return r
}

func (s *Store) GetContract(ctx context.Context, tenantID, contractID string) (*contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[key(tenantID, contractID)]
	if !ok {
		return nil, contract.ErrContractNotFound
	}
	out := cloneContract(c)
	return &out, nil
}

func (s *Store) InsertContract(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(c.TenantID, c.ID)
	if _, ok := s.contracts[k]; ok {
		return fmt.Errorf("contract %s already exists", c.ID)
	}
	s.contracts[k] = cloneContract(*c)
	return nil
}

func (s *Store) UpdateContract(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(c.TenantID, c.ID)
	if _, ok := s.contracts[k]; !ok {
		return contract.ErrContractNotFound
	}
	s.contracts[k] = cloneContract(*c)
	return nil
}

func (s *Store) InsertScheduleItems(ctx context.Context, items []contract.ScheduleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduleItems = append(s.scheduleItems, items...)
	return nil
}

func (s *Store) ListScheduleItems(ctx context.Context, tenantID, contractID string) ([]contract.ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contract.ScheduleItem
	for _, it := range s.scheduleItems {
		if it.TenantID == tenantID && it.ContractID == contractID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *Store) InsertDisbursement(ctx context.Context, d *transfer.Disbursement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(d.TenantID, d.ID)
	if _, ok := s.disbursements[k]; ok {
		return fmt.Errorf("disbursement %s already exists", d.ID)
	}
	s.disbursements[k] = cloneDisbursement(*d)
	return nil
}

func (s *Store) UpdateDisbursement(ctx context.Context, d *transfer.Disbursement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(d.TenantID, d.ID)
	if _, ok := s.disbursements[k]; !ok {
		return transfer.ErrRecordNotFound
	}
	s.disbursements[k] = cloneDisbursement(*d)
	return nil
}

func (s *Store) GetDisbursement(ctx context.Context, tenantID, id string) (*transfer.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.disbursements[key(tenantID, id)]
	if !ok {
		return nil, transfer.ErrRecordNotFound
	}
	out := cloneDisbursement(d)
	return &out, nil
}

func (s *Store) GetDisbursementByProviderRef(ctx context.Context, tenantID, providerRef string) (*transfer.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if providerRef == "" {
		return nil, transfer.ErrRecordNotFound
	}
	for _, d := range s.disbursements {
		if d.TenantID == tenantID && d.ProviderRef == providerRef {
			out := cloneDisbursement(d)
			return &out, nil
		}
	}
	return nil, transfer.ErrRecordNotFound
}

func (s *Store) ListDisbursementsInitiatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]transfer.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []transfer.Disbursement
	for _, d := range s.disbursements {
		if d.TenantID != tenantID || d.InitiatedAt == nil {
			continue
		}
		at := *d.InitiatedAt
		if at.Before(start) || at.After(end) {
			continue
		}
		out = append(out, cloneDisbursement(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.Before(*out[j].InitiatedAt) })
	return out, nil
}

func (s *Store) ListHeldDisbursements(ctx context.Context, tenantID string) ([]transfer.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []transfer.Disbursement
	for _, d := range s.disbursements {
		if d.TenantID == tenantID && d.AvailabilityState == transfer.AvailabilityHeld {
			out = append(out, cloneDisbursement(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) InsertRepayment(ctx context.Context, p *transfer.Repayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(p.TenantID, p.ID)
	if _, ok := s.repayments[k]; ok {
		return fmt.Errorf("repayment %s already exists", p.ID)
	}
	s.repayments[k] = cloneRepayment(*p)
	return nil
}

func (s *Store) UpdateRepayment(ctx context.Context, p *transfer.Repayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(p.TenantID, p.ID)
	if _, ok := s.repayments[k]; !ok {
		return transfer.ErrRecordNotFound
	}
	s.repayments[k] = cloneRepayment(*p)
	return nil
}

func (s *Store) GetRepayment(ctx context.Context, tenantID, id string) (*transfer.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.repayments[key(tenantID, id)]
	if !ok {
		return nil, transfer.ErrRecordNotFound
	}
	out := cloneRepayment(p)
	return &out, nil
}

func (s *Store) GetRepaymentByProviderRef(ctx context.Context, tenantID, providerRef string) (*transfer.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if providerRef == "" {
		return nil, transfer.ErrRecordNotFound
	}
	for _, p := range s.repayments {
		if p.TenantID == tenantID && p.ProviderRef == providerRef {
			out := cloneRepayment(p)
			return &out, nil
		}
	}
	return nil, transfer.ErrRecordNotFound
}

func (s *Store) ListRepaymentsInitiatedBetween(ctx context.Context, tenantID string, start, end time.Time) ([]transfer.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []transfer.Repayment
	for _, p := range s.repayments {
		if p.TenantID != tenantID || p.InitiatedAt == nil {
			continue
		}
		at := *p.InitiatedAt
		if at.Before(start) || at.After(end) {
			continue
		}
		out = append(out, cloneRepayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.Before(*out[j].InitiatedAt) })
	return out, nil
}

func (s *Store) ListHeldRepayments(ctx context.Context, tenantID string) ([]transfer.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []transfer.Repayment
	for _, p := range s.repayments {
		if p.TenantID == tenantID && p.AvailabilityState == transfer.AvailabilityHeld {
			out = append(out, cloneRepayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDueScheduledRepayments(ctx context.Context, tenantID string, cutoff time.Time) ([]transfer.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []transfer.Repayment
	for _, p := range s.repayments {
		if p.TenantID != tenantID || p.Status != transfer.StatusScheduled || p.ScheduledFor == nil {
			continue
		}
		if p.ScheduledFor.After(cutoff) {
			continue
		}
		out = append(out, cloneRepayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(*out[j].ScheduledFor) })
	return out, nil
}

func (s *Store) InsertInstrument(ctx context.Context, f *transfer.FundingInstrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(f.TenantID, f.ID)
	if _, ok := s.instruments[k]; ok {
		return fmt.Errorf("instrument %s already exists", f.ID)
	}
	s.instruments[k] = cloneInstrument(*f)
	return nil
}

func (s *Store) GetInstrument(ctx context.Context, tenantID, id string) (*transfer.FundingInstrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.instruments[key(tenantID, id)]
	if !ok {
		return nil, transfer.ErrRecordNotFound
	}
	out := cloneInstrument(f)
	return &out, nil
}

func (s *Store) UpdateInstrument(ctx context.Context, f *transfer.FundingInstrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(f.TenantID, f.ID)
	if _, ok := s.instruments[k]; !ok {
		return transfer.ErrRecordNotFound
	}
	s.instruments[k] = cloneInstrument(*f)
	return nil
}

func (s *Store) InsertRun(ctx context.Context, run *recon.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(run.TenantID, run.ID)
	if _, ok := s.runs[k]; ok {
		return fmt.Errorf("reconciliation run %s already exists", run.ID)
	}
	s.runs[k] = cloneRun(*run)
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, run *recon.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(run.TenantID, run.ID)
	if _, ok := s.runs[k]; !ok {
		return recon.ErrRunNotFound
	}
	s.runs[k] = cloneRun(*run)
	return nil
}

func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (*recon.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[key(tenantID, runID)]
	if !ok {
		return nil, recon.ErrRunNotFound
	}
	out := cloneRun(run)
	return &out, nil
}

func (s *Store) InsertException(ctx context.Context, e *recon.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(e.TenantID, e.ID)
	if _, ok := s.exceptions[k]; ok {
		return fmt.Errorf("reconciliation exception %s already exists", e.ID)
	}
	s.exceptions[k] = *e
	s.exceptionIDs = append(s.exceptionIDs, k)
	return nil
}

func (s *Store) UpdateException(ctx context.Context, e *recon.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(e.TenantID, e.ID)
	if _, ok := s.exceptions[k]; !ok {
		return fmt.Errorf("reconciliation exception %s not found", e.ID)
	}
	s.exceptions[k] = *e
	return nil
}

func (s *Store) ListExceptions(ctx context.Context, tenantID, runID string) ([]recon.Exception, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []recon.Exception
	for _, k := range s.exceptionIDs {
		e := s.exceptions[k]
		if e.TenantID == tenantID && e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}
