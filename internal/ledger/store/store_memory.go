package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"upandup/internal/ledger/models"
	id "upandup/pkg/domain"
	"upandup/pkg/platform/audit"
	"upandup/pkg/platform/audit/outbox"
	outboxmemory "upandup/pkg/platform/audit/outbox/store/memory"
	"upandup/pkg/platform/sentinel"
)

// InMemoryStore keeps ledger records in memory. Transactions work on a copy
// of the whole state that replaces the original on success, so a failed
// transaction leaves no partial writes and emits no events.
type InMemoryStore struct {
	mu     sync.Mutex
	state  *memoryState
	outbox outbox.Store
	events []audit.Event
}

type memoryState struct {
	partners    map[id.PartnerID]models.Partner
	workers     map[id.WorkerID]models.Worker
	credentials map[id.CredentialID]models.Credential
	scores      map[id.WorkerID]models.TrustScore
}

func newMemoryState() *memoryState {
	return &memoryState{
		partners:    make(map[id.PartnerID]models.Partner),
		workers:     make(map[id.WorkerID]models.Worker),
		credentials: make(map[id.CredentialID]models.Credential),
		scores:      make(map[id.WorkerID]models.TrustScore),
	}
}

func (m *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range m.partners {
		c.partners[k] = v
	}
	for k, v := range m.workers {
		c.workers[k] = v
	}
	for k, v := range m.credentials {
		c.credentials[k] = v
	}
	for k, v := range m.scores {
		c.scores[k] = v
	}
	return c
}

// NewInMemory creates an empty store. Events are appended to ob; a nil ob
// selects an in-memory outbox.
func NewInMemory(ob outbox.Store) *InMemoryStore {
	if ob == nil {
		ob = outboxmemory.New()
	}
	return &InMemoryStore{state: newMemoryState(), outbox: ob}
}

// Outbox returns the outbox events are appended to.
func (s *InMemoryStore) Outbox() outbox.Store {
	return s.outbox
}

// Events returns every committed event in order.
func (s *InMemoryStore) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// RunInTx implements TxRunner.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if err := checkTxContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryView{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := checkTxContext(ctx); err != nil {
		return err
	}

	if err := s.publishLocked(ctx, tx.pending); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// publishLocked stages every event as an outbox entry and appends them as
// one batch, so a failure leaves neither the outbox nor the event log touched.
func (s *InMemoryStore) publishLocked(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*outbox.Entry, 0, len(events))
	for _, event := range events {
		entry, err := outbox.FromEvent(event)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	if err := s.outbox.AppendBatch(ctx, entries); err != nil {
		return fmt.Errorf("append outbox entries: %w", err)
	}
	s.events = append(s.events, events...)
	return nil
}

// autocommit runs a single operation outside an explicit transaction.
func (s *InMemoryStore) autocommit(ctx context.Context, fn func(v *memoryView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &memoryView{state: s.state}
	if err := fn(v); err != nil {
		return err
	}
	return s.publishLocked(ctx, v.pending)
}

func (s *InMemoryStore) CreatePartner(ctx context.Context, partner *models.Partner) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.CreatePartner(ctx, partner) })
}

func (s *InMemoryStore) FindPartner(ctx context.Context, partnerID id.PartnerID) (*models.Partner, error) {
	var out *models.Partner
	err := s.autocommit(ctx, func(v *memoryView) (err error) {
		out, err = v.FindPartner(ctx, partnerID)
		return err
	})
	return out, err
}

func (s *InMemoryStore) UpdatePartner(ctx context.Context, partner *models.Partner) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.UpdatePartner(ctx, partner) })
}

func (s *InMemoryStore) CreateWorker(ctx context.Context, worker *models.Worker) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.CreateWorker(ctx, worker) })
}

func (s *InMemoryStore) FindWorker(ctx context.Context, workerID id.WorkerID) (*models.Worker, error) {
	var out *models.Worker
	err := s.autocommit(ctx, func(v *memoryView) (err error) {
		out, err = v.FindWorker(ctx, workerID)
		return err
	})
	return out, err
}

func (s *InMemoryStore) UpdateWorker(ctx context.Context, worker *models.Worker) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.UpdateWorker(ctx, worker) })
}

func (s *InMemoryStore) CreateCredential(ctx context.Context, credential *models.Credential) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.CreateCredential(ctx, credential) })
}

func (s *InMemoryStore) FindCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	var out *models.Credential
	err := s.autocommit(ctx, func(v *memoryView) (err error) {
		out, err = v.FindCredential(ctx, credentialID)
		return err
	})
	return out, err
}

func (s *InMemoryStore) UpdateCredential(ctx context.Context, credential *models.Credential) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.UpdateCredential(ctx, credential) })
}

func (s *InMemoryStore) ListCredentialsByWorker(ctx context.Context, workerID id.WorkerID) ([]*models.Credential, error) {
	var out []*models.Credential
	err := s.autocommit(ctx, func(v *memoryView) (err error) {
		out, err = v.ListCredentialsByWorker(ctx, workerID)
		return err
	})
	return out, err
}

func (s *InMemoryStore) ListDueCredentials(ctx context.Context, now, checkedBefore time.Time, limit int) ([]*models.Credential, error) {
	var out []*models.Credential
	err := s.autocommit(ctx, func(v *memoryView) (err error) {
		out, err = v.ListDueCredentials(ctx, now, checkedBefore, limit)
		return err
	})
	return out, err
}

func (s *InMemoryStore) ListAwaitingIssuance(ctx context.Context, limit int) ([]*models.Credential, error) {
	var out []*models.Credential
	err := s.autocommit(ctx, func(v *memoryView) (err error) {
		out, err = v.ListAwaitingIssuance(ctx, limit)
		return err
	})
	return out, err
}

func (s *InMemoryStore) FindTrustScore(ctx context.Context, workerID id.WorkerID) (*models.TrustScore, error) {
	var out *models.TrustScore
	err := s.autocommit(ctx, func(v *memoryView) (err error) {
		out, err = v.FindTrustScore(ctx, workerID)
		return err
	})
	return out, err
}

func (s *InMemoryStore) SaveTrustScore(ctx context.Context, score *models.TrustScore) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.SaveTrustScore(ctx, score) })
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, event audit.Event) error {
	return s.autocommit(ctx, func(v *memoryView) error { return v.AppendEvent(ctx, event) })
}

// memoryView implements Store over one state snapshot. The owning
// InMemoryStore holds its mutex for the lifetime of the view.
type memoryView struct {
	state   *memoryState
	pending []audit.Event
}

func (v *memoryView) CreatePartner(_ context.Context, partner *models.Partner) error {
	if partner == nil {
		return fmt.Errorf("partner is required")
	}
	if _, exists := v.state.partners[partner.ID]; exists {
		return sentinel.ErrConflict
	}
	v.state.partners[partner.ID] = *partner
	return nil
}

func (v *memoryView) FindPartner(_ context.Context, partnerID id.PartnerID) (*models.Partner, error) {
	partner, ok := v.state.partners[partnerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &partner, nil
}

func (v *memoryView) UpdatePartner(_ context.Context, partner *models.Partner) error {
	if partner == nil {
		return fmt.Errorf("partner is required")
	}
	if _, ok := v.state.partners[partner.ID]; !ok {
		return sentinel.ErrNotFound
	}
	v.state.partners[partner.ID] = *partner
	return nil
}

func (v *memoryView) CreateWorker(_ context.Context, worker *models.Worker) error {
	if worker == nil {
		return fmt.Errorf("worker is required")
	}
	if _, exists := v.state.workers[worker.ID]; exists {
		return sentinel.ErrConflict
	}
	if !worker.PartnerID.IsNil() {
		if _, ok := v.state.partners[worker.PartnerID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	if err := v.checkWorkerUnique(worker); err != nil {
		return err
	}
	v.state.workers[worker.ID] = *worker
	return nil
}

func (v *memoryView) FindWorker(_ context.Context, workerID id.WorkerID) (*models.Worker, error) {
	worker, ok := v.state.workers[workerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &worker, nil
}

func (v *memoryView) UpdateWorker(_ context.Context, worker *models.Worker) error {
	if worker == nil {
		return fmt.Errorf("worker is required")
	}
	if _, ok := v.state.workers[worker.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if !worker.PartnerID.IsNil() {
		if _, ok := v.state.partners[worker.PartnerID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	if err := v.checkWorkerUnique(worker); err != nil {
		return err
	}
	v.state.workers[worker.ID] = *worker
	return nil
}

// checkWorkerUnique mirrors the (partner_id, phone) and did constraints.
func (v *memoryView) checkWorkerUnique(worker *models.Worker) error {
	for otherID, other := range v.state.workers {
		if otherID == worker.ID {
			continue
		}
		if !worker.PartnerID.IsNil() && other.PartnerID == worker.PartnerID && other.Phone == worker.Phone {
			return sentinel.ErrConflict
		}
		if worker.DID != "" && other.DID == worker.DID {
			return sentinel.ErrConflict
		}
	}
	return nil
}

func (v *memoryView) CreateCredential(_ context.Context, credential *models.Credential) error {
	if credential == nil {
		return fmt.Errorf("credential is required")
	}
	if _, exists := v.state.credentials[credential.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, ok := v.state.workers[credential.WorkerID]; !ok {
		return sentinel.ErrNotFound
	}
	v.state.credentials[credential.ID] = *credential
	return nil
}

func (v *memoryView) FindCredential(_ context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	credential, ok := v.state.credentials[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &credential, nil
}

func (v *memoryView) UpdateCredential(_ context.Context, credential *models.Credential) error {
	if credential == nil {
		return fmt.Errorf("credential is required")
	}
	if _, ok := v.state.credentials[credential.ID]; !ok {
		return sentinel.ErrNotFound
	}
	v.state.credentials[credential.ID] = *credential
	return nil
}

func (v *memoryView) ListCredentialsByWorker(_ context.Context, workerID id.WorkerID) ([]*models.Credential, error) {
	var out []*models.Credential
	for _, credential := range v.state.credentials {
		if credential.WorkerID == workerID {
			out = append(out, &credential)
		}
	}
	slices.SortFunc(out, func(a, b *models.Credential) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (v *memoryView) ListDueCredentials(_ context.Context, now, checkedBefore time.Time, limit int) ([]*models.Credential, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []*models.Credential
	for _, credential := range v.state.credentials {
		if credential.Status != models.VerificationVerified {
			continue
		}
		expired := credential.ExpiresAt != nil && !credential.ExpiresAt.After(now)
		stale := credential.LastCheckedAt == nil || credential.LastCheckedAt.Before(checkedBefore)
		if expired || stale {
			out = append(out, &credential)
		}
	}
	slices.SortFunc(out, func(a, b *models.Credential) int {
		if c := checkedAt(a).Compare(checkedAt(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *memoryView) ListAwaitingIssuance(_ context.Context, limit int) ([]*models.Credential, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []*models.Credential
	for _, credential := range v.state.credentials {
		if credential.AwaitingIssuance() {
			out = append(out, &credential)
		}
	}
	slices.SortFunc(out, func(a, b *models.Credential) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func checkedAt(c *models.Credential) time.Time {
	if c.LastCheckedAt == nil {
		return time.Time{}
	}
	return *c.LastCheckedAt
}

func (v *memoryView) FindTrustScore(_ context.Context, workerID id.WorkerID) (*models.TrustScore, error) {
	score, ok := v.state.scores[workerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	score.Breakdown.CredentialTypes = slices.Clone(score.Breakdown.CredentialTypes)
	return &score, nil
}

func (v *memoryView) SaveTrustScore(_ context.Context, score *models.TrustScore) error {
	if score == nil {
		return fmt.Errorf("trust score is required")
	}
	if _, ok := v.state.workers[score.WorkerID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := *score
	stored.Breakdown.CredentialTypes = slices.Clone(score.Breakdown.CredentialTypes)
	v.state.scores[score.WorkerID] = stored
	return nil
}

func (v *memoryView) AppendEvent(_ context.Context, event audit.Event) error {
	v.pending = append(v.pending, event)
	return nil
}
