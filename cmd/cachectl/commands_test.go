package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"cardlink/backend/internal/database/dbtest"
	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/models"
	"cardlink/backend/internal/repair"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testStores(t *testing.T) (*stores, opener) {
	db := dbtest.New(t)
	s := &stores{
		ledger: ledger.New(db),
		cache:  graphcache.NewSQLCache(db),
		log:    zaptest.NewLogger(t),
		close:  func(context.Context) error { return nil },
	}
	return s, func(context.Context) (*stores, error) { return s, nil }
}

func accept(t *testing.T, l *ledger.Ledger, id, a, b string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, l.Insert(context.Background(), &models.ConnectionRequest{
		ID: id, SenderID: a, ReceiverID: b, State: models.StateAccepted,
		AcceptedAt: &now, CreatedAt: now, UpdatedAt: now,
	}))
}

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(open, &out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVerifyThenRebuild(t *testing.T) {
	s, open := testStores(t)
	accept(t, s.ledger, "r1", "alice", "bob")

	out, err := run(t, open, "verify", "--json")
	require.ErrorIs(t, err, errDrift)

	var report repair.VerifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Accepted)
	assert.Len(t, report.Missing, 2)

	out, err = run(t, open, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuilt 1 connections")

	out, err = run(t, open, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Missing cache entries: 0")
	assert.Contains(t, out, "Stale cache entries: 0")
}

func TestVerifyReportsStaleEntries(t *testing.T) {
	s, open := testStores(t)
	require.NoError(t, s.cache.AddPeer(context.Background(), "alice", "mallory"))

	out, err := run(t, open, "verify")
	require.ErrorIs(t, err, errDrift)
	assert.Contains(t, out, "stale   alice -> mallory")
}

func TestRejectsArgs(t *testing.T) {
	_, open := testStores(t)
	_, err := run(t, open, "rebuild", "extra")
	assert.Error(t, err)
}
