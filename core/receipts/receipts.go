// Package receipts keeps an audit log of contract invocations in a SQL
// database.
package receipts

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"ddbox/core/types"
)

// Receipt is the persisted record of one invocation, successful or not.
type Receipt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Action        string    `gorm:"index"`
	Caller        string    `gorm:"index"`
	Height        uint64    `gorm:"index"`
	BlockTime     uint64
	Success       bool
	Error         string
	Events        string `gorm:"type:text"`
	Transfers     string `gorm:"type:text"`
	Instructions  string `gorm:"type:text"`
	EffectsDigest string `gorm:"size:64"`
	CreatedAt     time.Time
}

// Entry is the input to Record.
type Entry struct {
	InvocationID string
	Action       string
	Caller       string
	Height       uint64
	Time         uint64
	Err          error
	Events       []types.Event
	Transfers    []types.Transfer
	Instructions []types.Instruction
}

// AutoMigrate performs all schema migrations for the receipt store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Receipt{})
}

// Open connects to the receipt database. DSNs starting with postgres:// or
// postgresql:// use the Postgres driver; anything else is treated as a SQLite
// path or URI.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("receipts: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("receipts: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("receipts: migrate: %w", err)
	}
	return db, nil
}

// Store records and lists receipts.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps a migrated database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EffectsDigest hashes the externally visible effects of an invocation with
// BLAKE3 over a length-delimited encoding so that two receipts can be compared
// without decoding their JSON columns.
func EffectsDigest(events []types.Event, transfers []types.Transfer, instructions []types.Instruction) string {
	h := blake3.New(32, nil)
	write := func(s string) {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(s)))
		_, _ = h.Write(length[:])
		_, _ = h.Write([]byte(s))
	}
	for _, evt := range events {
		write(evt.Type)
		keys := make([]string, 0, len(evt.Attributes))
		for k := range evt.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write(k)
			write(evt.Attributes[k])
		}
	}
	for _, tr := range transfers {
		write(tr.Recipient)
		write(tr.Coin.String())
	}
	for _, in := range instructions {
		write(in.Target)
		write(in.Action)
		write(string(in.Payload))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Record persists an entry.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.db == nil {
		return errors.New("receipts: store not configured")
	}
	id, err := uuid.Parse(entry.InvocationID)
	if err != nil {
		return fmt.Errorf("receipts: invocation id: %w", err)
	}
	rec := Receipt{
		ID:            id,
		Action:        entry.Action,
		Caller:        entry.Caller,
		Height:        entry.Height,
		BlockTime:     entry.Time,
		Success:       entry.Err == nil,
		EffectsDigest: EffectsDigest(entry.Events, entry.Transfers, entry.Instructions),
		CreatedAt:     s.now().UTC(),
	}
	if entry.Err != nil {
		rec.Error = entry.Err.Error()
	}
	if rec.Events, err = encodeJSON(nonNil(entry.Events)); err != nil {
		return fmt.Errorf("receipts: encode events: %w", err)
	}
	if rec.Transfers, err = encodeJSON(nonNil(entry.Transfers)); err != nil {
		return fmt.Errorf("receipts: encode transfers: %w", err)
	}
	if rec.Instructions, err = encodeJSON(nonNil(entry.Instructions)); err != nil {
		return fmt.Errorf("receipts: encode instructions: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("receipts: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit receipts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Receipt, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("receipts: store not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	var out []Receipt
	err := s.db.WithContext(ctx).Order("created_at DESC").Order("height DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("receipts: list: %w", err)
	}
	return out, nil
}

// Get loads a receipt by invocation id.
func (s *Store) Get(ctx context.Context, invocationID string) (*Receipt, error) {
	id, err := uuid.Parse(invocationID)
	if err != nil {
		return nil, fmt.Errorf("receipts: invocation id: %w", err)
	}
	var rec Receipt
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("receipts: get %s: %w", invocationID, err)
	}
	return &rec, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
