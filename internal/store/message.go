package store

import (
	"fmt"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/models"
)

// ListMessagesByCategory returns a category's template pool.
func (s *Store) ListMessagesByCategory(category models.MessageCategory) ([]models.MessageTemplate, error) {
	var templates []models.MessageTemplate
	err := s.db.Where("category = ?", category).Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return templates, nil
}

// CreateMessage adds one template to a pool.
func (s *Store) CreateMessage(template *models.MessageTemplate) error {
	if err := s.db.Create(template).Error; err != nil {
		return fmt.Errorf("%w: %v", clinicerr.ErrStore, err)
	}
	return nil
}
