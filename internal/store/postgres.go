package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Camus10737/warket/internal/model"
)

// Postgres is the pgx-backed Store. Product rows are locked with
// SELECT ... FOR UPDATE inside transactions; orders and conversations use an
// optimistic revision column.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, q: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id             TEXT PRIMARY KEY,
	merchant_id    TEXT NOT NULL,
	name           TEXT NOT NULL,
	display_price  BIGINT NOT NULL,
	floor_price    BIGINT NOT NULL,
	quantity       INT NOT NULL CHECK (quantity >= 0),
	status         TEXT NOT NULL,
	total_sold     INT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_merchant ON products (merchant_id);

CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	merchant_id       TEXT NOT NULL,
	relation_id       TEXT NOT NULL,
	conversation_id   TEXT NOT NULL DEFAULT '',
	lines             JSONB NOT NULL,
	total_amount      BIGINT NOT NULL,
	discount          BIGINT NOT NULL DEFAULT 0,
	final_amount      BIGINT NOT NULL,
	status            TEXT NOT NULL,
	claim             JSONB,
	payment_method    TEXT NOT NULL DEFAULT '',
	payment_reference TEXT NOT NULL DEFAULT '',
	validated_by      TEXT NOT NULL DEFAULT '',
	validated_at      TIMESTAMPTZ,
	rejected_by       TEXT NOT NULL DEFAULT '',
	rejection_reason  TEXT NOT NULL DEFAULT '',
	rejected_at       TIMESTAMPTZ,
	stock_committed   BOOLEAN NOT NULL DEFAULT FALSE,
	problem_note      TEXT NOT NULL DEFAULT '',
	cancel_reason     TEXT NOT NULL DEFAULT '',
	delivery_address  TEXT NOT NULL DEFAULT '',
	delivery_expected TIMESTAMPTZ,
	delivered_at      TIMESTAMPTZ,
	revision          BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_merchant ON orders (merchant_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_relation ON orders (relation_id, status);

CREATE TABLE IF NOT EXISTS conversations (
	id                TEXT PRIMARY KEY,
	merchant_id       TEXT NOT NULL,
	relation_id       TEXT NOT NULL,
	status            TEXT NOT NULL,
	escalation_reason TEXT NOT NULL DEFAULT '',
	escalation_note   TEXT NOT NULL DEFAULT '',
	escalated_at      TIMESTAMPTZ,
	resolution_note   TEXT NOT NULL DEFAULT '',
	resolved_at       TIMESTAMPTZ,
	closed_at         TIMESTAMPTZ,
	last_activity     TIMESTAMPTZ NOT NULL,
	message_count     INT NOT NULL DEFAULT 0,
	revision          BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_merchant ON conversations (merchant_id, status);
CREATE INDEX IF NOT EXISTS idx_conversations_relation ON conversations (relation_id);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	merchant_id     TEXT NOT NULL,
	sender          TEXT NOT NULL,
	kind            TEXT NOT NULL,
	content         TEXT NOT NULL,
	order_id        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS relations (
	id                TEXT PRIMARY KEY,
	merchant_id       TEXT NOT NULL,
	buyer_ref         TEXT NOT NULL,
	buyer_name        TEXT NOT NULL DEFAULT '',
	purchase_count    INT NOT NULL DEFAULT 0,
	total_spent       BIGINT NOT NULL DEFAULT 0,
	last_purchase_at  TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (merchant_id, buyer_ref)
);
`

// EnsureSchema creates tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) Products() ProductStore           { return pgProducts{p} }
func (p *Postgres) Orders() OrderStore               { return pgOrders{p} }
func (p *Postgres) Conversations() ConversationStore { return pgConversations{p} }
func (p *Postgres) Messages() MessageStore           { return pgMessages{p} }
func (p *Postgres) Relations() RelationStore         { return pgRelations{p} }

// Atomically runs fn inside a database transaction.
func (p *Postgres) Atomically(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if _, already := p.q.(pgx.Tx); already {
		return fn(ctx, p)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Postgres{pool: p.pool, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// ---- products ----

type pgProducts struct{ p *Postgres }

const productCols = `id, merchant_id, name, display_price, floor_price, quantity, status, total_sold, created_at, updated_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.MerchantID, &p.Name, &p.DisplayPrice, &p.FloorPrice,
		&p.Quantity, &p.Status, &p.TotalSold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &p, nil
}

func (s pgProducts) Create(ctx context.Context, p *model.Product) error {
	_, err := s.p.q.Exec(ctx, `INSERT INTO products (`+productCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.MerchantID, p.Name, p.DisplayPrice, p.FloorPrice,
		p.Quantity, p.Status, p.TotalSold, p.CreatedAt, p.UpdatedAt)
	return mapPgErr(err)
}

func (s pgProducts) Get(ctx context.Context, id string) (*model.Product, error) {
	return scanProduct(s.p.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
}

func (s pgProducts) GetForUpdate(ctx context.Context, id string) (*model.Product, error) {
	return scanProduct(s.p.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (s pgProducts) Update(ctx context.Context, p *model.Product) error {
	tag, err := s.p.q.Exec(ctx, `UPDATE products SET name=$2, display_price=$3, floor_price=$4,
		quantity=$5, status=$6, total_sold=$7, updated_at=now() WHERE id=$1`,
		p.ID, p.Name, p.DisplayPrice, p.FloorPrice, p.Quantity, p.Status, p.TotalSold)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s pgProducts) List(ctx context.Context, merchantID string) ([]model.Product, error) {
	rows, err := s.p.q.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE merchant_id = $1 ORDER BY created_at DESC`, merchantID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ---- orders ----

type pgOrders struct{ p *Postgres }

const orderCols = `id, merchant_id, relation_id, conversation_id, lines, total_amount, discount,
	final_amount, status, claim, payment_method, payment_reference, validated_by, validated_at,
	rejected_by, rejection_reason, rejected_at, stock_committed, problem_note, cancel_reason,
	delivery_address, delivery_expected, delivered_at, revision, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var lines, claim []byte
	err := row.Scan(&o.ID, &o.MerchantID, &o.RelationID, &o.ConversationID, &lines,
		&o.TotalAmount, &o.Discount, &o.FinalAmount, &o.Status, &claim,
		&o.PaymentMethod, &o.PaymentReference, &o.ValidatedBy, &o.ValidatedAt,
		&o.RejectedBy, &o.RejectionReason, &o.RejectedAt, &o.StockCommitted,
		&o.ProblemNote, &o.CancelReason, &o.DeliveryAddress, &o.DeliveryExpected,
		&o.DeliveredAt, &o.Revision, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode order lines: %w", err)
	}
	if len(claim) > 0 {
		o.Claim = &model.PaymentClaim{}
		if err := json.Unmarshal(claim, o.Claim); err != nil {
			return nil, fmt.Errorf("failed to decode payment claim: %w", err)
		}
	}
	return &o, nil
}

func orderArgs(o *model.Order) ([]byte, []byte, error) {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return nil, nil, err
	}
	var claim []byte
	if o.Claim != nil {
		claim, err = json.Marshal(o.Claim)
		if err != nil {
			return nil, nil, err
		}
	}
	return lines, claim, nil
}

func (s pgOrders) Create(ctx context.Context, o *model.Order) error {
	lines, claim, err := orderArgs(o)
	if err != nil {
		return err
	}
	_, err = s.p.q.Exec(ctx, `INSERT INTO orders (`+orderCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
		o.ID, o.MerchantID, o.RelationID, o.ConversationID, lines, o.TotalAmount, o.Discount,
		o.FinalAmount, o.Status, claim, o.PaymentMethod, o.PaymentReference, o.ValidatedBy,
		o.ValidatedAt, o.RejectedBy, o.RejectionReason, o.RejectedAt, o.StockCommitted,
		o.ProblemNote, o.CancelReason, o.DeliveryAddress, o.DeliveryExpected, o.DeliveredAt,
		o.Revision, o.CreatedAt, o.UpdatedAt)
	return mapPgErr(err)
}

func (s pgOrders) Get(ctx context.Context, id string) (*model.Order, error) {
	return scanOrder(s.p.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
}

func (s pgOrders) GetForUpdate(ctx context.Context, id string) (*model.Order, error) {
	return scanOrder(s.p.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (s pgOrders) Update(ctx context.Context, o *model.Order) error {
	lines, claim, err := orderArgs(o)
	if err != nil {
		return err
	}
	tag, err := s.p.q.Exec(ctx, `UPDATE orders SET lines=$3, total_amount=$4, discount=$5,
		final_amount=$6, status=$7, claim=$8, payment_method=$9, payment_reference=$10,
		validated_by=$11, validated_at=$12, rejected_by=$13, rejection_reason=$14, rejected_at=$15,
		stock_committed=$16, problem_note=$17, cancel_reason=$18, delivery_address=$19,
		delivery_expected=$20, delivered_at=$21, revision = revision + 1, updated_at = now()
		WHERE id = $1 AND revision = $2`,
		o.ID, o.Revision, lines, o.TotalAmount, o.Discount, o.FinalAmount, o.Status, claim,
		o.PaymentMethod, o.PaymentReference, o.ValidatedBy, o.ValidatedAt, o.RejectedBy,
		o.RejectionReason, o.RejectedAt, o.StockCommitted, o.ProblemNote, o.CancelReason,
		o.DeliveryAddress, o.DeliveryExpected, o.DeliveredAt)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.p.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return mapPgErr(err)
		}
		if exists {
			return ErrRevisionConflict
		}
		return ErrNotFound
	}
	o.Revision++
	return nil
}

func (s pgOrders) List(ctx context.Context, merchantID string, status model.OrderStatus) ([]model.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders WHERE merchant_id = $1`
	args := []any{merchantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s pgOrders) LatestPendingByRelation(ctx context.Context, relationID string) (*model.Order, error) {
	return scanOrder(s.p.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders
		WHERE relation_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		relationID, model.OrderPending))
}

// ---- conversations ----

type pgConversations struct{ p *Postgres }

const conversationCols = `id, merchant_id, relation_id, status, escalation_reason, escalation_note,
	escalated_at, resolution_note, resolved_at, closed_at, last_activity, message_count, revision,
	created_at, updated_at`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.MerchantID, &c.RelationID, &c.Status, &c.EscalationReason,
		&c.EscalationNote, &c.EscalatedAt, &c.ResolutionNote, &c.ResolvedAt, &c.ClosedAt,
		&c.LastActivity, &c.MessageCount, &c.Revision, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &c, nil
}

func (s pgConversations) Create(ctx context.Context, c *model.Conversation) error {
	_, err := s.p.q.Exec(ctx, `INSERT INTO conversations (`+conversationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.MerchantID, c.RelationID, c.Status, c.EscalationReason, c.EscalationNote,
		c.EscalatedAt, c.ResolutionNote, c.ResolvedAt, c.ClosedAt, c.LastActivity,
		c.MessageCount, c.Revision, c.CreatedAt, c.UpdatedAt)
	return mapPgErr(err)
}

func (s pgConversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return scanConversation(s.p.q.QueryRow(ctx, `SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id))
}

func (s pgConversations) Update(ctx context.Context, c *model.Conversation) error {
	tag, err := s.p.q.Exec(ctx, `UPDATE conversations SET status=$3, escalation_reason=$4,
		escalation_note=$5, escalated_at=$6, resolution_note=$7, resolved_at=$8, closed_at=$9,
		last_activity=$10, message_count=$11, revision = revision + 1, updated_at = now()
		WHERE id = $1 AND revision = $2`,
		c.ID, c.Revision, c.Status, c.EscalationReason, c.EscalationNote, c.EscalatedAt,
		c.ResolutionNote, c.ResolvedAt, c.ClosedAt, c.LastActivity, c.MessageCount)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.p.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return mapPgErr(err)
		}
		if exists {
			return ErrRevisionConflict
		}
		return ErrNotFound
	}
	c.Revision++
	return nil
}

func (s pgConversations) FindActive(ctx context.Context, relationID string) (*model.Conversation, error) {
	return scanConversation(s.p.q.QueryRow(ctx, `SELECT `+conversationCols+` FROM conversations
		WHERE relation_id = $1 AND status IN ($2, $3)
		ORDER BY last_activity DESC LIMIT 1`,
		relationID, model.ConversationAutomated, model.ConversationEscalated))
}

func (s pgConversations) List(ctx context.Context, merchantID string, status model.ConversationStatus) ([]model.Conversation, error) {
	query := `SELECT ` + conversationCols + ` FROM conversations WHERE merchant_id = $1`
	args := []any{merchantID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY last_activity DESC`

	rows, err := s.p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ---- messages ----

type pgMessages struct{ p *Postgres }

func (s pgMessages) Append(ctx context.Context, m *model.Message) error {
	_, err := s.p.q.Exec(ctx, `INSERT INTO messages (id, conversation_id, merchant_id, sender, kind, content, order_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.ConversationID, m.MerchantID, m.Sender, m.Kind, m.Content, m.OrderID, m.CreatedAt)
	return mapPgErr(err)
}

func (s pgMessages) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	query := `SELECT id, conversation_id, merchant_id, sender, kind, content, order_id, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at`
	args := []any{conversationID}
	if limit > 0 {
		// Keep the most recent messages in chronological order.
		query = `SELECT * FROM (
			SELECT id, conversation_id, merchant_id, sender, kind, content, order_id, created_at
			FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at`
		args = append(args, limit)
	}

	rows, err := s.p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.MerchantID, &m.Sender, &m.Kind,
			&m.Content, &m.OrderID, &m.CreatedAt); err != nil {
			return nil, mapPgErr(err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- relations ----

type pgRelations struct{ p *Postgres }

const relationCols = `id, merchant_id, buyer_ref, buyer_name, purchase_count, total_spent, last_purchase_at, created_at, updated_at`

func scanRelation(row pgx.Row) (*model.ClientRelation, error) {
	var r model.ClientRelation
	err := row.Scan(&r.ID, &r.MerchantID, &r.BuyerRef, &r.BuyerName, &r.PurchaseCount,
		&r.TotalSpent, &r.LastPurchaseAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &r, nil
}

func (s pgRelations) Create(ctx context.Context, r *model.ClientRelation) error {
	_, err := s.p.q.Exec(ctx, `INSERT INTO relations (`+relationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.MerchantID, r.BuyerRef, r.BuyerName, r.PurchaseCount, r.TotalSpent,
		r.LastPurchaseAt, r.CreatedAt, r.UpdatedAt)
	return mapPgErr(err)
}

func (s pgRelations) Get(ctx context.Context, id string) (*model.ClientRelation, error) {
	return scanRelation(s.p.q.QueryRow(ctx, `SELECT `+relationCols+` FROM relations WHERE id = $1`, id))
}

func (s pgRelations) FindByBuyer(ctx context.Context, merchantID, buyerRef string) (*model.ClientRelation, error) {
	return scanRelation(s.p.q.QueryRow(ctx, `SELECT `+relationCols+` FROM relations
		WHERE merchant_id = $1 AND buyer_ref = $2`, merchantID, buyerRef))
}

func (s pgRelations) Update(ctx context.Context, r *model.ClientRelation) error {
	tag, err := s.p.q.Exec(ctx, `UPDATE relations SET buyer_name=$2, purchase_count=$3,
		total_spent=$4, last_purchase_at=$5, updated_at=now() WHERE id=$1`,
		r.ID, r.BuyerName, r.PurchaseCount, r.TotalSpent, r.LastPurchaseAt)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s pgRelations) List(ctx context.Context, merchantID string) ([]model.ClientRelation, error) {
	rows, err := s.p.q.Query(ctx, `SELECT `+relationCols+` FROM relations
		WHERE merchant_id = $1 ORDER BY created_at DESC`, merchantID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []model.ClientRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
