package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Camus10737/warket/internal/model"
)

// Memory is an in-process Store used for tests and single-node deployments.
// A transaction clones the full data set under the exclusive lock and swaps
// it back in on success, so transactions serialize and roll back cleanly.
type Memory struct {
	mu   *sync.RWMutex
	data *memData
	inTx bool
}

type memData struct {
	products      map[string]*model.Product
	orders        map[string]*model.Order
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message
	relations     map[string]*model.ClientRelation
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		mu: &sync.RWMutex{},
		data: &memData{
			products:      make(map[string]*model.Product),
			orders:        make(map[string]*model.Order),
			conversations: make(map[string]*model.Conversation),
			messages:      make(map[string][]*model.Message),
			relations:     make(map[string]*model.ClientRelation),
		},
	}
}

func (m *Memory) Products() ProductStore           { return memProducts{m} }
func (m *Memory) Orders() OrderStore               { return memOrders{m} }
func (m *Memory) Conversations() ConversationStore { return memConversations{m} }
func (m *Memory) Messages() MessageStore           { return memMessages{m} }
func (m *Memory) Relations() RelationStore         { return memRelations{m} }

// Atomically holds the write lock for the duration of fn, so concurrent
// transactions are fully serialized.
func (m *Memory) Atomically(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if m.inTx {
		return fn(ctx, m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.data.clone()
	tx := &Memory{mu: m.mu, data: staged, inTx: true}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.data = staged
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() {}

func (m *Memory) read(fn func(d *memData) error) error {
	if !m.inTx {
		m.mu.RLock()
		defer m.mu.RUnlock()
	}
	return fn(m.data)
}

func (m *Memory) write(fn func(d *memData) error) error {
	if !m.inTx {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	return fn(m.data)
}

func (d *memData) clone() *memData {
	c := &memData{
		products:      make(map[string]*model.Product, len(d.products)),
		orders:        make(map[string]*model.Order, len(d.orders)),
		conversations: make(map[string]*model.Conversation, len(d.conversations)),
		messages:      make(map[string][]*model.Message, len(d.messages)),
		relations:     make(map[string]*model.ClientRelation, len(d.relations)),
	}
	for k, v := range d.products {
		c.products[k] = copyProduct(v)
	}
	for k, v := range d.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range d.conversations {
		c.conversations[k] = copyConversation(v)
	}
	for k, v := range d.messages {
		msgs := make([]*model.Message, len(v))
		for i, msg := range v {
			cp := *msg
			msgs[i] = &cp
		}
		c.messages[k] = msgs
	}
	for k, v := range d.relations {
		c.relations[k] = copyRelation(v)
	}
	return c
}

func copyProduct(p *model.Product) *model.Product {
	cp := *p
	return &cp
}

func copyOrder(o *model.Order) *model.Order {
	cp := *o
	cp.Lines = append([]model.OrderLine(nil), o.Lines...)
	if o.Claim != nil {
		claim := *o.Claim
		cp.Claim = &claim
	}
	return &cp
}

func copyConversation(c *model.Conversation) *model.Conversation {
	cp := *c
	return &cp
}

func copyRelation(r *model.ClientRelation) *model.ClientRelation {
	cp := *r
	return &cp
}

// ---- products ----

type memProducts struct{ m *Memory }

func (s memProducts) Create(ctx context.Context, p *model.Product) error {
	return s.m.write(func(d *memData) error {
		if _, ok := d.products[p.ID]; ok {
			return ErrDuplicate
		}
		d.products[p.ID] = copyProduct(p)
		return nil
	})
}

func (s memProducts) Get(ctx context.Context, id string) (*model.Product, error) {
	var out *model.Product
	err := s.m.read(func(d *memData) error {
		p, ok := d.products[id]
		if !ok {
			return ErrNotFound
		}
		out = copyProduct(p)
		return nil
	})
	return out, err
}

// GetForUpdate is equivalent to Get for the memory store: the transaction
// already holds the exclusive lock.
func (s memProducts) GetForUpdate(ctx context.Context, id string) (*model.Product, error) {
	return s.Get(ctx, id)
}

func (s memProducts) Update(ctx context.Context, p *model.Product) error {
	return s.m.write(func(d *memData) error {
		if _, ok := d.products[p.ID]; !ok {
			return ErrNotFound
		}
		p.UpdatedAt = time.Now()
		d.products[p.ID] = copyProduct(p)
		return nil
	})
}

func (s memProducts) List(ctx context.Context, merchantID string) ([]model.Product, error) {
	var out []model.Product
	err := s.m.read(func(d *memData) error {
		for _, p := range d.products {
			if p.MerchantID == merchantID {
				out = append(out, *copyProduct(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

// ---- orders ----

type memOrders struct{ m *Memory }

func (s memOrders) Create(ctx context.Context, o *model.Order) error {
	return s.m.write(func(d *memData) error {
		if _, ok := d.orders[o.ID]; ok {
			return ErrDuplicate
		}
		d.orders[o.ID] = copyOrder(o)
		return nil
	})
}

func (s memOrders) Get(ctx context.Context, id string) (*model.Order, error) {
	var out *model.Order
	err := s.m.read(func(d *memData) error {
		o, ok := d.orders[id]
		if !ok {
			return ErrNotFound
		}
		out = copyOrder(o)
		return nil
	})
	return out, err
}

// GetForUpdate is equivalent to Get for the memory store: the transaction
// already holds the exclusive lock.
func (s memOrders) GetForUpdate(ctx context.Context, id string) (*model.Order, error) {
	return s.Get(ctx, id)
}

func (s memOrders) Update(ctx context.Context, o *model.Order) error {
	return s.m.write(func(d *memData) error {
		cur, ok := d.orders[o.ID]
		if !ok {
			return ErrNotFound
		}
		if cur.Revision != o.Revision {
			return ErrRevisionConflict
		}
		o.Revision++
		o.UpdatedAt = time.Now()
		d.orders[o.ID] = copyOrder(o)
		return nil
	})
}

func (s memOrders) List(ctx context.Context, merchantID string, status model.OrderStatus) ([]model.Order, error) {
	var out []model.Order
	err := s.m.read(func(d *memData) error {
		for _, o := range d.orders {
			if o.MerchantID != merchantID {
				continue
			}
			if status != "" && o.Status != status {
				continue
			}
			out = append(out, *copyOrder(o))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (s memOrders) LatestPendingByRelation(ctx context.Context, relationID string) (*model.Order, error) {
	var out *model.Order
	err := s.m.read(func(d *memData) error {
		for _, o := range d.orders {
			if o.RelationID != relationID || o.Status != model.OrderPending {
				continue
			}
			if out == nil || o.CreatedAt.After(out.CreatedAt) {
				out = copyOrder(o)
			}
		}
		if out == nil {
			return ErrNotFound
		}
		return nil
	})
	return out, err
}

// ---- conversations ----

type memConversations struct{ m *Memory }

func (s memConversations) Create(ctx context.Context, c *model.Conversation) error {
	return s.m.write(func(d *memData) error {
		if _, ok := d.conversations[c.ID]; ok {
			return ErrDuplicate
		}
		d.conversations[c.ID] = copyConversation(c)
		return nil
	})
}

func (s memConversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var out *model.Conversation
	err := s.m.read(func(d *memData) error {
		c, ok := d.conversations[id]
		if !ok {
			return ErrNotFound
		}
		out = copyConversation(c)
		return nil
	})
	return out, err
}

func (s memConversations) Update(ctx context.Context, c *model.Conversation) error {
	return s.m.write(func(d *memData) error {
		cur, ok := d.conversations[c.ID]
		if !ok {
			return ErrNotFound
		}
		if cur.Revision != c.Revision {
			return ErrRevisionConflict
		}
		c.Revision++
		c.UpdatedAt = time.Now()
		d.conversations[c.ID] = copyConversation(c)
		return nil
	})
}

func (s memConversations) FindActive(ctx context.Context, relationID string) (*model.Conversation, error) {
	var out *model.Conversation
	err := s.m.read(func(d *memData) error {
		for _, c := range d.conversations {
			if c.RelationID != relationID || c.Status.Terminal() {
				continue
			}
			if out == nil || c.LastActivity.After(out.LastActivity) {
				out = copyConversation(c)
			}
		}
		if out == nil {
			return ErrNotFound
		}
		return nil
	})
	return out, err
}

func (s memConversations) List(ctx context.Context, merchantID string, status model.ConversationStatus) ([]model.Conversation, error) {
	var out []model.Conversation
	err := s.m.read(func(d *memData) error {
		for _, c := range d.conversations {
			if c.MerchantID != merchantID {
				continue
			}
			if status != "" && c.Status != status {
				continue
			}
			out = append(out, *copyConversation(c))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, err
}

// ---- messages ----

type memMessages struct{ m *Memory }

func (s memMessages) Append(ctx context.Context, msg *model.Message) error {
	return s.m.write(func(d *memData) error {
		cp := *msg
		d.messages[msg.ConversationID] = append(d.messages[msg.ConversationID], &cp)
		return nil
	})
}

func (s memMessages) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	var out []model.Message
	err := s.m.read(func(d *memData) error {
		msgs := d.messages[conversationID]
		start := 0
		if limit > 0 && len(msgs) > limit {
			start = len(msgs) - limit
		}
		for _, msg := range msgs[start:] {
			out = append(out, *msg)
		}
		return nil
	})
	return out, err
}

// ---- relations ----

type memRelations struct{ m *Memory }

func (s memRelations) Create(ctx context.Context, r *model.ClientRelation) error {
	return s.m.write(func(d *memData) error {
		if _, ok := d.relations[r.ID]; ok {
			return ErrDuplicate
		}
		for _, existing := range d.relations {
			if existing.MerchantID == r.MerchantID && existing.BuyerRef == r.BuyerRef {
				return ErrDuplicate
			}
		}
		d.relations[r.ID] = copyRelation(r)
		return nil
	})
}

func (s memRelations) Get(ctx context.Context, id string) (*model.ClientRelation, error) {
	var out *model.ClientRelation
	err := s.m.read(func(d *memData) error {
		r, ok := d.relations[id]
		if !ok {
			return ErrNotFound
		}
		out = copyRelation(r)
		return nil
	})
	return out, err
}

func (s memRelations) FindByBuyer(ctx context.Context, merchantID, buyerRef string) (*model.ClientRelation, error) {
	var out *model.ClientRelation
	err := s.m.read(func(d *memData) error {
		for _, r := range d.relations {
			if r.MerchantID == merchantID && r.BuyerRef == buyerRef {
				out = copyRelation(r)
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (s memRelations) Update(ctx context.Context, r *model.ClientRelation) error {
	return s.m.write(func(d *memData) error {
		if _, ok := d.relations[r.ID]; !ok {
			return ErrNotFound
		}
		r.UpdatedAt = time.Now()
		d.relations[r.ID] = copyRelation(r)
		return nil
	})
}

func (s memRelations) List(ctx context.Context, merchantID string) ([]model.ClientRelation, error) {
	var out []model.ClientRelation
	err := s.m.read(func(d *memData) error {
		for _, r := range d.relations {
			if r.MerchantID == merchantID {
				out = append(out, *copyRelation(r))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}
