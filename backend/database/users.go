package database

import (
	"gorm.io/gorm"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/models"
)

// Credential-store accessors. Each takes the *gorm.DB to run against so the
// same lookup works inside a transaction; lockout-counter updates must go
// through DB.Transaction with a fresh row read to stay atomic.

func FindUserByID(db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByUsername(db *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByActivationToken(db *gorm.DB, token string) (*models.User, error) {
	var user models.User
	if err := db.Where("activation_token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func SaveUser(db *gorm.DB, user *models.User) error {
	return db.Save(user).Error
}

func CountUsersByRole(db *gorm.DB, role string) (int64, error) {
	var count int64
	err := db.Model(&models.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

// CountOwnersExcluding reports how many owner accounts exist besides the
// given one. The role guard uses it to check for a successor before an
// owner steps down.
func CountOwnersExcluding(db *gorm.DB, id uint) (int64, error) {
	var count int64
	err := db.Model(&models.User{}).
		Where("role = ? AND id <> ?", auth.RoleOwner, id).
		Count(&count).Error
	return count, err
}
