package database

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/models"
)

var DB *gorm.DB

func Init(path string) error {
	var err error
	DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return err
	}
	return DB.AutoMigrate(&models.User{}, &models.AuditEntry{})
}

// EnsureOwner provisions the bootstrap owner account when no owner exists.
// Idempotent: a second boot is a no-op.
func EnsureOwner(username, password, email string) error {
	count, err := CountUsersByRole(DB, auth.RoleOwner)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	owner := models.User{
		Username:       username,
		Email:          email,
		Password:       string(hash),
		Role:           auth.RoleOwner,
		EmailConfirmed: true,
	}
	return DB.Create(&owner).Error
}
