// Package store persists contacts and the inbound-message ledger in Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/raincheckbot/raincheck/relay/contract"
)

type Config struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type contactRow struct {
	bun.BaseModel `bun:"table:contacts,alias:c"`

	ID           int64                   `bun:"id,pk,autoincrement"`
	Phone        string                  `bun:"phone,notnull,unique"`
	Name         string                  `bun:"name"`
	AccountID    string                  `bun:"account_id"`
	LocationName string                  `bun:"location_name"`
	Location     *contractx.SaveLocation `bun:"location,type:jsonb"`
	Settings     map[string]any          `bun:"settings,type:jsonb"`
	CreatedAt    time.Time               `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time               `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type inboundMessageRow struct {
	bun.BaseModel `bun:"table:inbound_messages,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	MessageID string    `bun:"message_id,notnull"`
	Body      string    `bun:"body"`
	ContactID int64     `bun:"contact_id,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// ContactStore implements contract.ContactStore on top of bun.
type ContactStore struct {
	db *bun.DB
}

var _ contractx.ContactStore = (*ContactStore)(nil)

// Open connects to Postgres and returns a store. The caller owns the
// connection lifetime via Close.
func Open(cfg Config) (*ContactStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	return New(bun.NewDB(sqldb, pgdialect.New())), nil
}

func New(db *bun.DB) *ContactStore {
	return &ContactStore{db: db}
}

func (s *ContactStore) Close() error {
	return s.db.Close()
}

// CreateSchema creates the tables if they do not exist yet.
func (s *ContactStore) CreateSchema(ctx context.Context) error {
	models := []any{
		(*contactRow)(nil),
		(*inboundMessageRow)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: create schema: %v", contractx.ErrPersistence, err)
		}
	}
	return nil
}

func (s *ContactStore) FindOrCreate(ctx context.Context, phone, name, accountID string) (contractx.Contact, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return contractx.Contact{}, fmt.Errorf("%w: phone is required", contractx.ErrValidation)
	}

	row, err := s.byPhone(ctx, phone)
	if err == nil {
		return toContact(row), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return contractx.Contact{}, fmt.Errorf("%w: select contact: %v", contractx.ErrPersistence, err)
	}

	fresh := &contactRow{
		Phone:     phone,
		Name:      strings.TrimSpace(name),
		AccountID: strings.TrimSpace(accountID),
	}
	// A concurrent turn for the same phone may have inserted already;
	// DO NOTHING keeps the first writer's name and we re-select below.
	if _, err := s.db.NewInsert().
		Model(fresh).
		On("CONFLICT (phone) DO NOTHING").
		Exec(ctx); err != nil {
		return contractx.Contact{}, fmt.Errorf("%w: insert contact: %v", contractx.ErrPersistence, err)
	}

	row, err = s.byPhone(ctx, phone)
	if err != nil {
		return contractx.Contact{}, fmt.Errorf("%w: reselect contact: %v", contractx.ErrPersistence, err)
	}
	return toContact(row), nil
}

func (s *ContactStore) SaveLocation(ctx context.Context, contactID int64, locationName string, raw contractx.SaveLocation) (contractx.Contact, error) {
	row := &contactRow{
		ID:           contactID,
		LocationName: locationName,
		Location:     &raw,
		UpdatedAt:    time.Now().UTC(),
	}

	res, err := s.db.NewUpdate().
		Model(row).
		Column("location_name", "location", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return contractx.Contact{}, fmt.Errorf("%w: update location: %v", contractx.ErrPersistence, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return contractx.Contact{}, fmt.Errorf("%w: contact id=%d not found", contractx.ErrPersistence, contactID)
	}

	updated := new(contactRow)
	if err := s.db.NewSelect().Model(updated).Where("c.id = ?", contactID).Scan(ctx); err != nil {
		return contractx.Contact{}, fmt.Errorf("%w: reload contact: %v", contractx.ErrPersistence, err)
	}
	return toContact(updated), nil
}

func (s *ContactStore) RecordMessage(ctx context.Context, messageID, body string, contactID int64) error {
	row := &inboundMessageRow{
		MessageID: strings.TrimSpace(messageID),
		Body:      body,
		ContactID: contactID,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: record message: %v", contractx.ErrPersistence, err)
	}
	return nil
}

func (s *ContactStore) Seen(ctx context.Context, messageID string, contactID int64) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*inboundMessageRow)(nil)).
		Where("m.message_id = ?", strings.TrimSpace(messageID)).
		Where("m.contact_id = ?", contactID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: ledger lookup: %v", contractx.ErrPersistence, err)
	}
	return exists, nil
}

func (s *ContactStore) byPhone(ctx context.Context, phone string) (*contactRow, error) {
	row := new(contactRow)
	if err := s.db.NewSelect().Model(row).Where("c.phone = ?", phone).Limit(1).Scan(ctx); err != nil {
		return nil, err
	}
	return row, nil
}

func toContact(row *contactRow) contractx.Contact {
	return contractx.Contact{
		ID:           row.ID,
		Phone:        row.Phone,
		Name:         row.Name,
		AccountID:    row.AccountID,
		LocationName: row.LocationName,
		Location:     row.Location,
		Settings:     row.Settings,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
