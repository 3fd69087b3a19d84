package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FleetDrive is one drive of a stored fleet.
type FleetDrive struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Fleet     string    `gorm:"uniqueIndex:idx_fleet_position;size:255;not null" json:"fleet"`
	Position  int       `gorm:"uniqueIndex:idx_fleet_position;not null" json:"position"`
	Used      int       `gorm:"not null;default:0" json:"used"`
	Total     int       `gorm:"not null;default:0" json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for FleetDrive.
func (FleetDrive) TableName() string {
	return "fleet_drives"
}

// SQLStorage keeps fleets in a relational database through gorm.
type SQLStorage struct {
	db        *gorm.DB
	maxDrives int
}

// NewSQLStorage wraps an open gorm connection. Call AutoMigrate before first
// use unless the schema is managed elsewhere.
func NewSQLStorage(db *gorm.DB, maxDrives int) *SQLStorage {
	return &SQLStorage{db: db, maxDrives: maxDrives}
}

// AutoMigrate creates or updates the fleet_drives table.
func (s *SQLStorage) AutoMigrate() error {
	if err := s.db.AutoMigrate(&FleetDrive{}); err != nil {
		return fmt.Errorf("migrate %T: %w", FleetDrive{}, err)
	}
	return nil
}

func (s *SQLStorage) ListFleets() ([]string, error) {
	var names []string
	if err := s.db.Model(&FleetDrive{}).Distinct().Order("fleet").Pluck("fleet", &names).Error; err != nil {
		return nil, fmt.Errorf("list fleets: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *SQLStorage) GetFleet(name string) (Fleet, error) {
	var drives []FleetDrive
	if err := s.db.Where("fleet = ?", name).Order("position").Find(&drives).Error; err != nil {
		return Fleet{}, fmt.Errorf("get fleet %s: %w", name, err)
	}
	if len(drives) == 0 {
		return Fleet{}, fmt.Errorf("%w: %s", ErrFleetNotFound, name)
	}

	fleet := Fleet{
		Name:  name,
		Used:  make([]int, len(drives)),
		Total: make([]int, len(drives)),
	}
	for i, d := range drives {
		fleet.Used[i] = d.Used
		fleet.Total[i] = d.Total
	}
	return fleet, nil
}

// SaveFleet replaces all drives of the fleet in a single transaction.
func (s *SQLStorage) SaveFleet(fleet Fleet) error {
	normalized, err := NormalizeFleet(fleet, s.maxDrives)
	if err != nil {
		return err
	}

	drives := make([]FleetDrive, len(normalized.Used))
	for i := range normalized.Used {
		drives[i] = FleetDrive{
			Fleet:    normalized.Name,
			Position: i,
			Used:     normalized.Used[i],
			Total:    normalized.Total[i],
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fleet = ?", normalized.Name).Delete(&FleetDrive{}).Error; err != nil {
			return err
		}
		return tx.Create(&drives).Error
	})
	if err != nil {
		return fmt.Errorf("save fleet %s: %w", normalized.Name, err)
	}
	return nil
}

func (s *SQLStorage) DeleteFleet(name string) error {
	result := s.db.Where("fleet = ?", name).Delete(&FleetDrive{})
	if result.Error != nil {
		return fmt.Errorf("delete fleet %s: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrFleetNotFound, name)
	}
	return nil
}

// IsNotFound reports whether err means the requested fleet does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFleetNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
