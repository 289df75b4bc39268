package settings

import (
	"errors"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	KeySoundEnabled = "sound_effects_enabled"
	KeyStoreName    = "store_name"

	DefaultStoreName = "茶茶日和"
)

type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store adalah key-value lokal untuk preferensi terminal (toggle suara,
// nama toko). Disimpan di SQLite supaya tahan restart; bukan bagian dari
// state yang disinkronkan.
type Store struct {
	db *gorm.DB
}

// Open membuka (atau membuat) file settings. Gunakan ":memory:" di test.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key string) (string, bool, error) {
	var row Setting
	err := s.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *Store) Set(key, value string) error {
	row := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// SoundEnabled default true bila belum pernah diset.
func (s *Store) SoundEnabled() bool {
	v, ok, err := s.Get(KeySoundEnabled)
	if err != nil || !ok {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}

func (s *Store) SetSoundEnabled(enabled bool) error {
	return s.Set(KeySoundEnabled, strconv.FormatBool(enabled))
}

func (s *Store) StoreName() string {
	v, ok, err := s.Get(KeyStoreName)
	if err != nil || !ok || v == "" {
		return DefaultStoreName
	}
	return v
}

func (s *Store) SetStoreName(name string) error {
	return s.Set(KeyStoreName, name)
}
