package store

import (
	"sort"
	"sync"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/util"
)

// Compile-time checks that InMemoryStore implements the interfaces.
var (
	_ Store     = (*InMemoryStore)(nil)
	_ BatchRepo = (*InMemoryStore)(nil)
)

type dedupRecord struct {
	phone       string
	receivedAt  time.Time
	processedAt *time.Time
}

// InMemoryStore keeps everything in process memory behind one mutex. It
// backs tests and local development where no database is configured.
type InMemoryStore struct {
	mu         sync.Mutex
	contacts   map[string]models.Contact // keyed by contact id
	phoneIndex map[string]string         // canonical phone -> contact id
	messages   map[string][]models.Message
	dedup      map[string]dedupRecord
	batches    map[string]TriggerBatch
	batchOrder []string
	items      map[string][]TriggerItem
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contacts:   make(map[string]models.Contact),
		phoneIndex: make(map[string]string),
		messages:   make(map[string][]models.Message),
		dedup:      make(map[string]dedupRecord),
		batches:    make(map[string]TriggerBatch),
		items:      make(map[string][]TriggerItem),
	}
}

func (s *InMemoryStore) UpsertContact(c models.Contact) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.phoneIndex[c.Phone]; ok {
		existing := s.contacts[id]
		existing.Name = c.Name
		existing.Status = c.Status
		existing.Automation = c.Automation
		existing.UpdatedAt = now
		s.contacts[id] = existing
		return &existing, nil
	}

	if c.ID == "" {
		c.ID = util.GenerateContactID()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.contacts[c.ID] = c
	s.phoneIndex[c.Phone] = c.ID
	return &c, nil
}

func (s *InMemoryStore) GetContact(id string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) GetContactByPhone(phone string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.phoneIndex[phone]
	if !ok {
		return nil, nil
	}
	c := s.contacts[id]
	return &c, nil
}

func (s *InMemoryStore) ListContacts() ([]models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		contacts = append(contacts, c)
	}
	// Most recently updated first, matching the SQL backends.
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].UpdatedAt.After(contacts[j].UpdatedAt)
	})
	return contacts, nil
}

func (s *InMemoryStore) UpdateContact(c models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[c.ID]
	if !ok {
		return nil
	}
	existing.Name = c.Name
	existing.Status = c.Status
	existing.Automation = c.Automation
	existing.LastMessage = c.LastMessage
	existing.LastTimestamp = c.LastTimestamp
	existing.Unread = c.Unread
	existing.TermConfirmedAt = c.TermConfirmedAt
	existing.UpdatedAt = time.Now().UTC()
	s.contacts[c.ID] = existing
	return nil
}

func (s *InMemoryStore) UpdateContactActivity(id string, lastMessage string, lastTimestamp time.Time, unread bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return nil
	}
	ts := lastTimestamp
	c.LastMessage = lastMessage
	c.LastTimestamp = &ts
	c.Unread = unread
	c.UpdatedAt = time.Now().UTC()
	s.contacts[id] = c
	return nil
}

func (s *InMemoryStore) UpdateContactStatusIf(id string, from, to models.ContactStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	s.contacts[id] = c
	return true, nil
}

func (s *InMemoryStore) UpdateContactStateIf(id string, from, to models.ContactStatus, automation models.AutomationState, termConfirmedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.Automation = automation
	c.TermConfirmedAt = termConfirmedAt
	c.UpdatedAt = time.Now().UTC()
	s.contacts[id] = c
	return true, nil
}

func (s *InMemoryStore) ListDueFollowUps(cutoff time.Time) ([]models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []models.Contact
	for _, c := range s.contacts {
		if c.Status != models.StatusPostTerm || c.TermConfirmedAt == nil {
			continue
		}
		if c.TermConfirmedAt.After(cutoff) {
			continue
		}
		due = append(due, c)
	}
	return due, nil
}

func (s *InMemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = util.GenerateMessageID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	s.messages[m.ContactID] = append(s.messages[m.ContactID], m)
	return nil
}

func (s *InMemoryStore) ListMessages(contactID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[contactID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) UpdateMessageStatusBySid(sid string, status models.MessageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for contactID, msgs := range s.messages {
		for i := range msgs {
			if msgs[i].ProviderSid == sid {
				msgs[i].DeliveryStatus = status
				s.messages[contactID] = msgs
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *InMemoryStore) RecordInbound(messageSid, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dedup[messageSid]; ok {
		return false, nil
	}
	s.dedup[messageSid] = dedupRecord{phone: phone, receivedAt: time.Now().UTC()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageSid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.dedup[messageSid]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	rec.processedAt = &now
	s.dedup[messageSid] = rec
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func (s *InMemoryStore) CreateBatch(b TriggerBatch, items []TriggerItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[b.ID] = b
	s.batchOrder = append(s.batchOrder, b.ID)
	s.items[b.ID] = append([]TriggerItem(nil), items...)
	return nil
}

func (s *InMemoryStore) GetBatch(id string) (*TriggerBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *InMemoryStore) ListBatchItems(batchID string) ([]TriggerItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.items[batchID]
	out := make([]TriggerItem, len(items))
	copy(out, items)
	return out, nil
}

func (s *InMemoryStore) ClaimQueuedItems(now time.Time, limit int) ([]TriggerItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []TriggerItem
	for _, batchID := range s.batchOrder {
		items := s.items[batchID]
		touched := false
		for i := range items {
			if len(claimed) >= limit {
				break
			}
			if items[i].Status != ItemStatusQueued {
				continue
			}
			lockedAt := now
			items[i].Status = ItemStatusRunning
			items[i].LockedAt = &lockedAt
			items[i].UpdatedAt = now
			claimed = append(claimed, items[i])
			touched = true
		}
		if touched {
			s.items[batchID] = items
			if b := s.batches[batchID]; b.Status == BatchStatusQueued {
				b.Status = BatchStatusRunning
				b.UpdatedAt = now
				s.batches[batchID] = b
			}
		}
		if len(claimed) >= limit {
			break
		}
	}
	return claimed, nil
}

func (s *InMemoryStore) CompleteItem(batchID string, idx int, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.items[batchID]
	for i := range items {
		if items[i].Idx == idx {
			items[i].Status = ItemStatusSent
			items[i].Sid = sid
			items[i].LockedAt = nil
			items[i].UpdatedAt = time.Now().UTC()
			s.items[batchID] = items
			break
		}
	}
	s.settleBatchLocked(batchID)
	return nil
}

func (s *InMemoryStore) FailItem(batchID string, idx int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.items[batchID]
	for i := range items {
		if items[i].Idx == idx {
			items[i].Status = ItemStatusFailed
			items[i].Reason = reason
			items[i].LockedAt = nil
			items[i].UpdatedAt = time.Now().UTC()
			s.items[batchID] = items
			break
		}
	}
	s.settleBatchLocked(batchID)
	return nil
}

// settleBatchLocked decrements pending and closes the batch at zero.
// Callers must hold s.mu.
func (s *InMemoryStore) settleBatchLocked(batchID string) {
	b, ok := s.batches[batchID]
	if !ok {
		return
	}
	b.Pending--
	if b.Pending <= 0 {
		b.Pending = 0
		b.Status = BatchStatusDone
	}
	b.UpdatedAt = time.Now().UTC()
	s.batches[batchID] = b
}

func (s *InMemoryStore) RequeueStaleItems(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requeued := 0
	now := time.Now().UTC()
	for batchID, items := range s.items {
		touched := false
		for i := range items {
			if items[i].Status != ItemStatusRunning || items[i].LockedAt == nil {
				continue
			}
			if !items[i].LockedAt.Before(staleBefore) {
				continue
			}
			items[i].Status = ItemStatusQueued
			items[i].LockedAt = nil
			items[i].UpdatedAt = now
			requeued++
			touched = true
		}
		if touched {
			s.items[batchID] = items
		}
	}
	return requeued, nil
}
