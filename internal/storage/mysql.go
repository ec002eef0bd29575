package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Azurakun/AnTiMa-sub000/internal/config"
	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// MySQLStore persists sessions, turn history and world state as JSON
// document columns in MySQL. It implements SessionStore, TurnStore and
// WorldStore.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.Session{}, &models.Turn{}, &models.WorldState{}); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SessionStore

func (s *MySQLStore) CreateSession(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *MySQLStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *MySQLStore) UpdateSession(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Save(session).Error
}

func (s *MySQLStore) SetSessionField(ctx context.Context, sessionID, field string, value interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update(field, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return interfaces.ErrSessionNotFound
	}
	return nil
}

func (s *MySQLStore) ListDeleteRequested(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	err := s.db.WithContext(ctx).Where("delete_requested = ?", true).Find(&sessions).Error
	return sessions, err
}

func (s *MySQLStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Turn{}, "session_id = ?", sessionID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Session{}, "id = ?", sessionID).Error
	})
}

// TurnStore

// AppendTurn writes the turn row and the total_turns bump in one
// transaction so a failed persistence never leaves a half-recorded turn.
func (s *MySQLStore) AppendTurn(ctx context.Context, turn *models.Turn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(turn).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Session{}).
			Where("id = ?", turn.SessionID).
			Update("total_turns", gorm.Expr("total_turns + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

func (s *MySQLStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]*models.Turn, error) {
	var turns []*models.Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	reverseTurns(turns)
	return turns, nil
}

func (s *MySQLStore) AllTurns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	var turns []*models.Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_id ASC").
		Find(&turns).Error
	return turns, err
}

func (s *MySQLStore) TurnCount(ctx context.Context, sessionID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Turn{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return int(count), err
}

func (s *MySQLStore) DeleteOldest(ctx context.Context, sessionID string, n int) ([]*models.Turn, error) {
	var turns []*models.Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_id ASC").
		Limit(n).
		Find(&turns).Error
	if err != nil || len(turns) == 0 {
		return nil, err
	}
	last := turns[len(turns)-1].TurnID
	err = s.db.WithContext(ctx).
		Delete(&models.Turn{}, "session_id = ? AND turn_id <= ?", sessionID, last).Error
	return turns, err
}

func (s *MySQLStore) DeleteAfter(ctx context.Context, sessionID string, turnID int) ([]*models.Turn, error) {
	var turns []*models.Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND turn_id > ?", sessionID, turnID).
		Order("turn_id ASC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).
		Delete(&models.Turn{}, "session_id = ? AND turn_id > ?", sessionID, turnID).Error
	return turns, err
}

// ReplaceHistory swaps the full turn history and total_turns counter.
// Used by the transcript sync/rebuild path.
func (s *MySQLStore) ReplaceHistory(ctx context.Context, sessionID string, turns []*models.Turn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Turn{}, "session_id = ?", sessionID).Error; err != nil {
			return err
		}
		if len(turns) > 0 {
			if err := tx.Create(turns).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&models.Session{}).
			Where("id = ?", sessionID).
			Update("total_turns", len(turns))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return interfaces.ErrSessionNotFound
		}
		return nil
	})
}

// WorldStore

func (s *MySQLStore) GetWorldState(ctx context.Context, sessionID string) (*models.WorldState, error) {
	var world models.WorldState
	err := s.db.WithContext(ctx).First(&world, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewWorldState(sessionID), nil
	}
	if err != nil {
		return nil, err
	}
	ensureMaps(&world)
	return &world, nil
}

func (s *MySQLStore) SaveWorldState(ctx context.Context, world *models.WorldState) error {
	return s.db.WithContext(ctx).Save(world).Error
}

// UnsetEntity removes a single entity key. Used only by the dashboard's
// NPC management endpoint and campaign deletion.
func (s *MySQLStore) UnsetEntity(ctx context.Context, sessionID string, cat models.Category, key string) error {
	world, err := s.GetWorldState(ctx, sessionID)
	if err != nil {
		return err
	}
	entities := world.Entities(cat)
	if entities == nil {
		return fmt.Errorf("unknown category %q", cat)
	}
	delete(entities, key)
	return s.SaveWorldState(ctx, world)
}

func (s *MySQLStore) DeleteWorldState(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Delete(&models.WorldState{}, "session_id = ?", sessionID).Error
}

func reverseTurns(turns []*models.Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}

func ensureMaps(w *models.WorldState) {
	if w.NPCs == nil {
		w.NPCs = make(map[string]*models.Entity)
	}
	if w.Locations == nil {
		w.Locations = make(map[string]*models.Entity)
	}
	if w.Quests == nil {
		w.Quests = make(map[string]*models.Entity)
	}
	if w.Events == nil {
		w.Events = make(map[string]*models.Entity)
	}
}
