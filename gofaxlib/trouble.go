package gofaxlib

import (
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gofaxmodem/t30"
)

// TroubleStore remembers remote stations that failed at a modulation, so
// later calls to the same number start with the safer one.
type TroubleStore interface {
	Get(number string) (t30.Trouble, error)
	MarkV17(number string) error
	MarkV34(number string) error
}

// RemoteTrouble is the persisted form of t30.Trouble for one number.
type RemoteTrouble struct {
	ID        uint   `gorm:"primaryKey"`
	Number    string `gorm:"uniqueIndex;size:64"`
	V17       bool
	V34       bool
	UpdatedAt time.Time
}

// MemoryTroubleStore keeps trouble flags for the lifetime of the process.
type MemoryTroubleStore struct {
	mu      sync.Mutex
	remotes map[string]t30.Trouble
}

func NewMemoryTroubleStore() *MemoryTroubleStore {
	return &MemoryTroubleStore{remotes: make(map[string]t30.Trouble)}
}

func (s *MemoryTroubleStore) Get(number string) (t30.Trouble, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remotes[number], nil
}

func (s *MemoryTroubleStore) MarkV17(number string) error {
	if number == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.remotes[number]
	tr.V17 = true
	s.remotes[number] = tr
	return nil
}

func (s *MemoryTroubleStore) MarkV34(number string) error {
	if number == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.remotes[number]
	tr.V34 = true
	s.remotes[number] = tr
	return nil
}

// DBTroubleStore keeps trouble flags in the database.
type DBTroubleStore struct {
	db *gorm.DB
}

func NewDBTroubleStore(db *gorm.DB) *DBTroubleStore {
	return &DBTroubleStore{db: db}
}

// Migrate creates the remote_troubles table.
func (s *DBTroubleStore) Migrate() error {
	return s.db.AutoMigrate(&RemoteTrouble{})
}

func (s *DBTroubleStore) Get(number string) (t30.Trouble, error) {
	var rec RemoteTrouble
	err := s.db.Where("number = ?", number).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t30.Trouble{}, nil
	}
	if err != nil {
		return t30.Trouble{}, err
	}
	return t30.Trouble{V17: rec.V17, V34: rec.V34}, nil
}

func (s *DBTroubleStore) MarkV17(number string) error {
	return s.mark(number, "v17")
}

func (s *DBTroubleStore) MarkV34(number string) error {
	return s.mark(number, "v34")
}

func (s *DBTroubleStore) mark(number, column string) error {
	if number == "" {
		return nil
	}
	return upsertTrouble(s.db, number, column).Error
}

func upsertTrouble(tx *gorm.DB, number, column string) *gorm.DB {
	rec := RemoteTrouble{Number: number, UpdatedAt: time.Now()}
	switch column {
	case "v17":
		rec.V17 = true
	case "v34":
		rec.V34 = true
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "number"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(&rec)
}
