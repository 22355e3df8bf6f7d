package store

import (
	"errors"
	"fmt"
	"strings"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"

	"gorm.io/gorm"
)

// FindUserByName looks a user up by the normalized lowercase key, so the
// lookup is case-insensitive without a table scan.
func (s *Store) FindUserByName(name string) (*models.User, error) {
	var user models.User
	err := s.db.Where("user_name_lower = ?", strings.ToLower(name)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %q", clinicerr.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return &user, nil
}

// UpsertUser saves the user, creating it on first registration. The
// BeforeSave hook keeps the normalized key and attendance rate current.
func (s *Store) UpsertUser(user *models.User) error {
	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return nil
}

// ListUsers returns every registered user.
func (s *Store) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("user_name_lower").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return users, nil
}

// FindUserByChatID resolves an already-linked messenger chat to its user.
func (s *Store) FindUserByChatID(chatID int64) (*models.User, error) {
	var user models.User
	err := s.db.Where("notify_chat_id = ?", chatID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: chat %d", clinicerr.ErrNotFound, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return &user, nil
}
