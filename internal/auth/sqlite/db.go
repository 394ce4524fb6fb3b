// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements the auth repositories on an embedded SQLite
// database through gorm. It backs single-binary deployments and the
// end-to-end web tests.
package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/oops"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

type userRecord struct {
	ID             string     `gorm:"primaryKey;size:26"`
	Email          string     `gorm:"size:254;not null"`
	EmailLower     string     `gorm:"size:254;not null;uniqueIndex:users_email_lower_key"`
	Username       string     `gorm:"size:150;not null"`
	UsernameLower  string     `gorm:"size:150;not null;uniqueIndex:users_username_lower_key"`
	PasswordHash   string     `gorm:"not null"`
	IsActive       bool       `gorm:"not null"`
	IsStaff        bool       `gorm:"not null"`
	IsSuperuser    bool       `gorm:"not null"`
	FailedAttempts int        `gorm:"not null"`
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (userRecord) TableName() string { return "users" }

type sessionRecord struct {
	ID         string    `gorm:"primaryKey;size:26"`
	UserID     string    `gorm:"size:26;not null;index:idx_web_sessions_user_id"`
	TokenHash  string    `gorm:"not null;uniqueIndex"`
	AuthHash   string    `gorm:"not null"`
	UserAgent  string    `gorm:"not null"`
	IPAddress  string    `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index:idx_web_sessions_expires_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	LastSeenAt time.Time `gorm:"not null"`
}

func (sessionRecord) TableName() string { return "web_sessions" }

// Open opens (creating if needed) the database at dsn and brings its schema
// up to date. SQLite allows one writer, so the pool holds a single
// connection; this also keeps an in-memory database alive between calls.
func Open(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, oops.Code("SQLITE_OPEN_FAILED").Errorf("sqlite dsn is required")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("dsn", dsn).Wrap(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("operation", "get sql.DB").Wrap(err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRecord{}, &sessionRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, oops.Code("SQLITE_MIGRATE_FAILED").Wrap(err)
	}
	return db, nil
}

// Ping checks that the database still answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return oops.Code("SQLITE_PING_FAILED").Wrap(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return oops.Code("SQLITE_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close releases the underlying connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return oops.Code("SQLITE_CLOSE_FAILED").Wrap(err)
	}
	if err := sqlDB.Close(); err != nil {
		return oops.Code("SQLITE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
