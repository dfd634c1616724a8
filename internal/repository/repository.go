package repository

import (
	"github.com/jvaldez-dev/mlm-rewards/utils"
	"gorm.io/gorm"
)

type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}
