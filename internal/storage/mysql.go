package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"conference-payments/internal/config"
	"conference-payments/internal/logger"
	"conference-payments/internal/models"
)

// sqlCommand is satisfied by both *sql.DB and *sql.Tx so the row operations
// below can run inside or outside a transaction.
type sqlCommand interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type MySQLStore struct {
	db  *sql.DB
	log *logger.Logger
	queries
}

type mysqlTx struct {
	queries
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &MySQLStore{
		db:      db,
		log:     log,
		queries: queries{cmd: db, log: log},
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established and tables initialized")
	return store, nil
}

func (s *MySQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "mysql", "Creating tables if not exists")

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticket_types (
			ticket_type_id VARCHAR(64) PRIMARY KEY,
			code VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(32) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			net_price DECIMAL(12,2) NOT NULL,
			quota INT NOT NULL,
			sold INT NOT NULL DEFAULT 0,
			active TINYINT(1) NOT NULL DEFAULT 1,
			UNIQUE KEY ux_code_currency (code, currency),
			INDEX idx_category (category)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			track VARCHAR(32) NOT NULL,
			capacity INT NOT NULL,
			linked INT NOT NULL DEFAULT 0,
			active TINYINT(1) NOT NULL DEFAULT 1,
			INDEX idx_track (track)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS ticket_session_links (
			ticket_type_id VARCHAR(64) NOT NULL,
			session_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (ticket_type_id, session_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS orders (
			order_id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			customer_name VARCHAR(255) NOT NULL,
			customer_email VARCHAR(255) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			fee_method VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			subtotal DECIMAL(12,2) NOT NULL,
			fee DECIMAL(12,2) NOT NULL,
			total DECIMAL(12,2) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_user_id (user_id),
			INDEX idx_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS order_items (
			item_id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL,
			ticket_type_id VARCHAR(64) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			name VARCHAR(255) NOT NULL,
			unit_price DECIMAL(12,2) NOT NULL,
			quantity INT NOT NULL,
			session_id VARCHAR(64) NULL,
			INDEX idx_order_id (order_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS payments (
			payment_id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL,
			intent_id VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			channel VARCHAR(64) NULL,
			receipt_url VARCHAR(512) NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY ux_order_id (order_id),
			INDEX idx_intent_id (intent_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS registrations (
			registration_id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			order_id VARCHAR(64) NOT NULL,
			ticket_type_id VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY ux_order_id (order_id),
			UNIQUE KEY ux_user_status (user_id, status),
			INDEX idx_user_id (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

		`CREATE TABLE IF NOT EXISTS registration_sessions (
			registration_id VARCHAR(64) NOT NULL,
			session_id VARCHAR(64) NOT NULL,
			order_item_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (registration_id, session_id, order_item_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "mysql", "All tables ready")
	return nil
}

func (s *MySQLStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Error("DATABASE", "Failed to begin transaction: "+err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	t := &mysqlTx{queries: queries{cmd: dbTx, log: s.log}}
	if err := fn(t); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			s.log.Error("DATABASE", "Rollback failed: "+rbErr.Error())
		}
		return err
	}

	if err := dbTx.Commit(); err != nil {
		s.log.Error("DATABASE", "Commit failed: "+err.Error())
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}

// queries implements every row operation over either *sql.DB or *sql.Tx.
type queries struct {
	cmd sqlCommand
	log *logger.Logger
}

func (q queries) GetTicketTypeByCode(ctx context.Context, code, currency string) (*models.TicketType, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT ticket_type_id, code, name, category, currency, net_price, quota, sold, active
		FROM ticket_types WHERE code = ? AND currency = ? AND active = 1`, code, currency)
	return scanTicketType(row)
}

func (q queries) GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT ticket_type_id, code, name, category, currency, net_price, quota, sold, active
		FROM ticket_types WHERE ticket_type_id = ?`, ticketTypeID)
	return scanTicketType(row)
}

func scanTicketType(row *sql.Row) (*models.TicketType, error) {
	tt := &models.TicketType{}
	err := row.Scan(&tt.TicketTypeID, &tt.Code, &tt.Name, &tt.Category, &tt.Currency,
		&tt.NetPrice, &tt.Quota, &tt.Sold, &tt.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}
	return tt, nil
}

func (q queries) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT session_id, name, track, capacity, linked, active
		FROM sessions WHERE session_id = ?`, sessionID)

	sess := &models.Session{}
	err := row.Scan(&sess.SessionID, &sess.Name, &sess.Track, &sess.Capacity, &sess.Linked, &sess.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (q queries) ListTicketSessionLinks(ctx context.Context, ticketTypeID string) ([]string, error) {
	rows, err := q.cmd.QueryContext(ctx, `
		SELECT session_id FROM ticket_session_links WHERE ticket_type_id = ?`, ticketTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session links: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q queries) SaveTicketSessionLink(ctx context.Context, ticketTypeID, sessionID string) error {
	_, err := q.cmd.ExecContext(ctx, `
		INSERT IGNORE INTO ticket_session_links (ticket_type_id, session_id)
		VALUES (?, ?)`, ticketTypeID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to save session link: %w", err)
	}
	return nil
}

func (q queries) FindMainSessionID(ctx context.Context) (string, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT session_id FROM sessions WHERE track = ? AND active = 1
		ORDER BY session_id LIMIT 1`, models.TrackMain)

	var id string
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find main session: %w", err)
	}
	return id, nil
}

func (q queries) CreateOrder(ctx context.Context, order *models.Order) error {
	q.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving order %s", order.OrderID))

	_, err := q.cmd.ExecContext(ctx, `
		INSERT INTO orders (order_id, user_id, customer_name, customer_email, currency,
			fee_method, status, subtotal, fee, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.OrderID, order.UserID, order.CustomerName, order.CustomerEmail, order.Currency,
		order.FeeMethod, order.Status, order.Subtotal, order.Fee, order.Total,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		q.log.Error("DATABASE", fmt.Sprintf("Failed to save order %s: %s", order.OrderID, err.Error()))
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (q queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	var sessionID interface{}
	if item.SessionID != "" {
		sessionID = item.SessionID
	}

	_, err := q.cmd.ExecContext(ctx, `
		INSERT INTO order_items (item_id, order_id, ticket_type_id, kind, name, unit_price, quantity, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ItemID, item.OrderID, item.TicketTypeID, item.Kind, item.Name,
		item.UnitPrice, item.Quantity, sessionID)
	if err != nil {
		return fmt.Errorf("failed to save order item: %w", err)
	}
	return nil
}

func (q queries) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT order_id, user_id, customer_name, customer_email, currency,
			fee_method, status, subtotal, fee, total, created_at, updated_at
		FROM orders WHERE order_id = ?`, orderID)

	order := &models.Order{}
	err := row.Scan(&order.OrderID, &order.UserID, &order.CustomerName, &order.CustomerEmail,
		&order.Currency, &order.FeeMethod, &order.Status, &order.Subtotal, &order.Fee,
		&order.Total, &order.CreatedAt, &order.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := q.cmd.QueryContext(ctx, `
		SELECT item_id, order_id, ticket_type_id, kind, name, unit_price, quantity, COALESCE(session_id, '')
		FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ItemID, &item.OrderID, &item.TicketTypeID, &item.Kind,
			&item.Name, &item.UnitPrice, &item.Quantity, &item.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

func (q queries) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	q.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Order %s -> %s", orderID, status))

	_, err := q.cmd.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE order_id = ?`, status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func (q queries) SavePayment(ctx context.Context, payment *models.Payment) error {
	q.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving payment %s", payment.PaymentID))

	_, err := q.cmd.ExecContext(ctx, `
		INSERT INTO payments (payment_id, order_id, intent_id, status, amount, currency,
			channel, receipt_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.PaymentID, payment.OrderID, payment.IntentID, payment.Status, payment.Amount,
		payment.Currency, nullable(payment.Channel), nullable(payment.ReceiptURL),
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		q.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (q queries) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	q.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Payment %s -> %s", payment.PaymentID, payment.Status))

	_, err := q.cmd.ExecContext(ctx, `
		UPDATE payments SET status = ?, channel = ?, receipt_url = ?, updated_at = ?
		WHERE payment_id = ?`,
		payment.Status, nullable(payment.Channel), nullable(payment.ReceiptURL),
		payment.UpdatedAt, payment.PaymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

func (q queries) getPayment(ctx context.Context, where string, arg interface{}) (*models.Payment, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT payment_id, order_id, intent_id, status, amount, currency,
			COALESCE(channel, ''), COALESCE(receipt_url, ''), created_at, updated_at
		FROM payments WHERE `+where, arg)

	p := &models.Payment{}
	err := row.Scan(&p.PaymentID, &p.OrderID, &p.IntentID, &p.Status, &p.Amount,
		&p.Currency, &p.Channel, &p.ReceiptURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (q queries) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return q.getPayment(ctx, "order_id = ?", orderID)
}

func (q queries) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return q.getPayment(ctx, "intent_id = ?", intentID)
}

func (q queries) GetConfirmedRegistrationByUser(ctx context.Context, userID string) (*models.Registration, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT registration_id, user_id, order_id, ticket_type_id, status, created_at
		FROM registrations WHERE user_id = ? AND status = ?`,
		userID, models.RegistrationConfirmed)
	return scanRegistration(row)
}

func (q queries) GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT registration_id, user_id, order_id, ticket_type_id, status, created_at
		FROM registrations WHERE order_id = ?`, orderID)
	return scanRegistration(row)
}

func scanRegistration(row *sql.Row) (*models.Registration, error) {
	reg := &models.Registration{}
	err := row.Scan(&reg.RegistrationID, &reg.UserID, &reg.OrderID, &reg.TicketTypeID,
		&reg.Status, &reg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (q queries) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	q.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving registration %s for user %s", reg.RegistrationID, reg.UserID))

	_, err := q.cmd.ExecContext(ctx, `
		INSERT INTO registrations (registration_id, user_id, order_id, ticket_type_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		reg.RegistrationID, reg.UserID, reg.OrderID, reg.TicketTypeID, reg.Status, reg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save registration: %w", err)
	}
	return nil
}

func (q queries) CreateRegistrationSession(ctx context.Context, link *models.RegistrationSession) error {
	_, err := q.cmd.ExecContext(ctx, `
		INSERT IGNORE INTO registration_sessions (registration_id, session_id, order_item_id)
		VALUES (?, ?, ?)`,
		link.RegistrationID, link.SessionID, link.OrderItemID)
	if err != nil {
		return fmt.Errorf("failed to save registration session: %w", err)
	}
	return nil
}

// UserOwnsTicketType reports whether any paid order of the user contains a
// line item for the ticket type. Used to reject duplicate add-on purchases.
func (q queries) UserOwnsTicketType(ctx context.Context, userID, ticketTypeID string) (bool, error) {
	row := q.cmd.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_items oi
		JOIN orders o ON o.order_id = oi.order_id
		WHERE o.user_id = ? AND o.status = ? AND oi.ticket_type_id = ?`,
		userID, models.OrderPaid, ticketTypeID)

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check ticket ownership: %w", err)
	}
	return count > 0, nil
}

func (q queries) IncrementSold(ctx context.Context, ticketTypeID string, n int) error {
	_, err := q.cmd.ExecContext(ctx,
		`UPDATE ticket_types SET sold = sold + ? WHERE ticket_type_id = ?`, n, ticketTypeID)
	if err != nil {
		return fmt.Errorf("failed to increment sold count: %w", err)
	}
	return nil
}

func (q queries) IncrementSessionLinked(ctx context.Context, sessionID string, n int) error {
	_, err := q.cmd.ExecContext(ctx,
		`UPDATE sessions SET linked = linked + ? WHERE session_id = ?`, n, sessionID)
	if err != nil {
		return fmt.Errorf("failed to increment session linked count: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
