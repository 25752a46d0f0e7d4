package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"price-pulse/models"
)

// ErrChatAlreadyLinked viene restituito quando la chat Telegram è già collegata a un altro utente
var ErrChatAlreadyLinked = errors.New("chat Telegram già collegata a un altro account")

// ListAlerts restituisce gli alert dell'utente, i più recenti per primi.
// status vuoto significa tutti gli stati.
func (s *GormStore) ListAlerts(ctx context.Context, userID uint, status string) ([]models.PriceAlert, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var alerts []models.PriceAlert
	err := query.Order("triggered_at DESC, id DESC").Find(&alerts).Error
	return alerts, err
}

// UserAlert restituisce un alert solo se appartiene all'utente
func (s *GormStore) UserAlert(ctx context.Context, userID, alertID uint) (*models.PriceAlert, error) {
	var alert models.PriceAlert
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", alertID, userID).Take(&alert).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &alert, nil
}

// TransitionAlert porta un alert dell'utente nello stato indicato (actioned o dismissed).
// La riga resta bloccata durante il controllo per non competere con il valutatore.
func (s *GormStore) TransitionAlert(ctx context.Context, userID, alertID uint, to string) (*models.PriceAlert, error) {
	var alert models.PriceAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", alertID, userID).
			Take(&alert).Error
		if err != nil {
			return notFound(err)
		}
		if err := alert.Transition(to); err != nil {
			return err
		}
		return tx.Model(&alert).Update("status", alert.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// MarkAllRead segna come letti tutti gli alert non letti dell'utente. Lo stato non cambia.
func (s *GormStore) MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.PriceAlert{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

// UserForChat restituisce l'utente che ha collegato la chat Telegram nelle impostazioni
func (s *GormStore) UserForChat(ctx context.Context, chatID int64) (uint, error) {
	var rule models.AlertRule
	err := s.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).Take(&rule).Error
	if err != nil {
		return 0, notFound(err)
	}
	return rule.UserID, nil
}

// EnsureChatAvailable verifica che la chat Telegram non sia collegata a un altro utente
func (s *GormStore) EnsureChatAvailable(ctx context.Context, chatID int64, userID uint) error {
	if chatID == 0 {
		return nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AlertRule{}).
		Where("telegram_chat_id = ? AND user_id <> ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrChatAlreadyLinked
	}
	return nil
}
