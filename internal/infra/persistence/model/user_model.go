package model

import "time"

// UserModel mirrors the 'users' table created by the migrations.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"type:varchar(255);uniqueIndex:uq_users_username;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName explicitly sets the table name for GORM.
func (UserModel) TableName() string {
	return "users"
}

// UserSummaryRow is the projection read by the listing. It has no hash column to select.
type UserSummaryRow struct {
	ID       int64
	Username string
}
