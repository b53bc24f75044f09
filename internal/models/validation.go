package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Validate проверяет маршрут после декодирования из хранилища
func (r *Route) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("route id is required")
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("route %s: start date is required", r.ID)
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("route %s: end date %s before start date %s", r.ID, r.EndDate, r.StartDate)
	}
	if r.Distance < 0 {
		return fmt.Errorf("route %s: negative distance %f", r.ID, r.Distance)
	}
	if !r.ActivityType.IsValid() {
		return fmt.Errorf("route %s: unknown activity type %d", r.ID, uint(r.ActivityType))
	}

	for i, p := range r.Points {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("route %s: point %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// Validate проверяет точку маршрута
func (p RoutePoint) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("point id is required")
	}
	if p.Speed < 0 {
		return fmt.Errorf("negative speed: %f", p.Speed)
	}
	return p.Position().Validate()
}
