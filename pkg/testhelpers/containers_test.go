//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_Seeded(t *testing.T) {
	testDB := GetTestDB(t)

	var count int
	err := testDB.Pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM orders").Scan(&count)
	if err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 seeded orders, got %d", count)
	}
}

func TestTestRedis_Addr(t *testing.T) {
	r := GetTestRedis(t)
	if r.Addr == "" {
		t.Fatal("expected a redis address")
	}
}
