package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ledgerRow struct {
	ID        int
	Reference string
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return &Client{conn: conn}
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var count int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&count).Error)
	return count
}

func TestWithTxCommits(t *testing.T) {
	client := newTestClient(t)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Reference: "ORDER-1"}).Error
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countRows(t, client))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := newTestClient(t)
	boom := errors.New("short-circuit")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{Reference: "ORDER-2"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, countRows(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newTestClient(t)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&ledgerRow{Reference: "ORDER-3"}).Error; err != nil {
				return err
			}
			panic("mid-transaction failure")
		})
	})
	assert.EqualValues(t, 0, countRows(t, client))
}

func TestPing(t *testing.T) {
	client := newTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil, ""))
	assert.False(t, IsUniqueViolation(errors.New("connection refused"), ""))

	pgStyle := fmt.Errorf("insert wallet: %w", errors.New(
		`ERROR: duplicate key value violates unique constraint "idx_wallets_user" (SQLSTATE 23505)`))
	assert.True(t, IsUniqueViolation(pgStyle, ""))
	assert.True(t, IsUniqueViolation(pgStyle, "idx_wallets_user"))
	assert.False(t, IsUniqueViolation(pgStyle, "idx_orders_open_code"))

	sqliteStyle := errors.New("UNIQUE constraint failed: wallets.user_id")
	assert.True(t, IsUniqueViolation(sqliteStyle, ""))
}
