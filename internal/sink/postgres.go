package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradepulse-go/internal/signal"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresOption defines connection options for the signal table.
type PostgresOption struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Params   map[string]string
	// DSN, when set, is used verbatim.
	DSN string
}

// SignalRow is the persisted form of a signal.
type SignalRow struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Timestamp      time.Time `gorm:"index:idx_signals_symbol_ts,priority:2;not null"`
	Symbol         string    `gorm:"index:idx_signals_symbol_ts,priority:1;size:32;not null"`
	Strategy       string    `gorm:"size:64;not null"`
	SignalType     string    `gorm:"size:8;not null"`
	ReferencePrice float64
	Metadata       string `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

// TableName pins the table name.
func (SignalRow) TableName() string { return "signals" }

// NewSignalRow converts s into its table row.
func NewSignalRow(s signal.Signal) (SignalRow, error) {
	meta := s.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return SignalRow{}, err
	}
	return SignalRow{
		ID:             s.ID,
		Timestamp:      s.Timestamp.UTC(),
		Symbol:         s.Symbol,
		Strategy:       s.Strategy,
		SignalType:     string(s.Type),
		ReferencePrice: s.ReferencePrice,
		Metadata:       string(raw),
	}, nil
}

// PostgresSink inserts one row per signal.
type PostgresSink struct {
	db *gorm.DB
}

var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink connects and migrates the signals table.
func NewPostgresSink(ctx context.Context, opt PostgresOption) (*PostgresSink, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresSinkDB(ctx, db)
}

// NewPostgresSinkDB uses an existing connection.
func NewPostgresSinkDB(ctx context.Context, db *gorm.DB) (*PostgresSink, error) {
	if err := db.WithContext(ctx).AutoMigrate(&SignalRow{}); err != nil {
		return nil, fmt.Errorf("migrate signals: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

func (p *PostgresSink) Publish(ctx context.Context, s signal.Signal) error {
	row, err := NewSignalRow(s)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *PostgresSink) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt PostgresOption) dsn() string {
	if opt.DSN != "" {
		return opt.DSN
	}
	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{Scheme: "postgres", Host: fmt.Sprintf("%s:%d", host, port)}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key != "" {
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}
