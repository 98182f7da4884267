//go:build integration

package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
)

// Run with:
//
//	TEST_DATABASE_DSN=postgres://... go test -tags integration ./internal/database/
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	s, err := Open(config.DatabaseConfig{DSN: dsn, MaxOpenConns: 10, MaxIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestCase(t *testing.T, s *Store) *core.Case {
	t.Helper()
	c := &core.Case{
		OperatorID:   "it-op",
		BorrowerName: "Integration Traders",
		ProgramType:  core.ProgramBanking,
	}
	require.NoError(t, s.CreateCase(context.Background(), c))
	return c
}

func addDocument(t *testing.T, s *Store, caseUUID string) *core.Document {
	t.Helper()
	d := &core.Document{
		ID:               uuid.NewString(),
		CaseUUID:         caseUUID,
		StorageKey:       "it/" + uuid.NewString(),
		OriginalFilename: "scan.pdf",
		ContentHash:      uuid.NewString(),
		SizeBytes:        1024,
		Extension:        ".pdf",
	}
	require.NoError(t, s.CreateDocument(context.Background(), d))
	return d
}

func TestDailyCounterAssignsUniqueCaseIDs(t *testing.T) {
	s := openTestStore(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		c := newTestCase(t, s)
		assert.Regexp(t, `^CASE-\d{8}-\d{4}$`, c.CaseID)
		assert.False(t, seen[c.CaseID], "case id %s assigned twice", c.CaseID)
		seen[c.CaseID] = true
	}
}

func TestClaimNextJobClaimsEachJobOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := newTestCase(t, s)

	id1, err := s.EnqueueJob(ctx, "ocr", c.UUID, nil)
	require.NoError(t, err)
	id2, err := s.EnqueueJob(ctx, "ocr", c.UUID, nil)
	require.NoError(t, err)

	claimed := map[string]bool{}
	for {
		j, err := s.ClaimNextJob(ctx)
		require.NoError(t, err)
		if j == nil {
			break
		}
		assert.False(t, claimed[j.ID], "job %s claimed twice", j.ID)
		assert.Equal(t, JobRunning, j.State)
		claimed[j.ID] = true
	}
	assert.True(t, claimed[id1])
	assert.True(t, claimed[id2])
}

func TestCancelledJobStaysCancelled(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := newTestCase(t, s)

	id, err := s.EnqueueJob(ctx, "extract", c.UUID, nil)
	require.NoError(t, err)
	j, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.Equal(t, id, j.ID)

	// The operator cancels while the worker holds the job.
	ok, err := s.CancelJob(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	cancelled, err := s.JobCancelled(ctx, id)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Neither settle path may resurrect the row.
	require.NoError(t, s.CompleteJob(ctx, id))
	require.NoError(t, s.FailJob(ctx, id, "late failure", true, time.Second))

	cancelled, err = s.JobCancelled(ctx, id)
	require.NoError(t, err)
	assert.True(t, cancelled, "cancelled job was settled by a late worker")

	// And a retry requeue must not make it claimable again.
	j, err = s.ClaimNextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestFailJobRequeuesWithBackoff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := newTestCase(t, s)

	_, err := s.EnqueueJob(ctx, "classify", c.UUID, nil)
	require.NoError(t, err)
	j, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, 1, j.Attempts)

	require.NoError(t, s.FailJob(ctx, j.ID, "upstream timeout", true, time.Hour))

	// Requeued but not due yet.
	again, err := s.ClaimNextJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "job became claimable before its backoff elapsed")
}

func TestEnqueueJobUnlessPendingCoalesces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := newTestCase(t, s)

	id1, created, err := s.EnqueueJobUnlessPending(ctx, "eligibility", c.UUID, nil)
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := s.EnqueueJobUnlessPending(ctx, "eligibility", c.UUID, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)
}

func TestAllDocumentsTerminalGatesCascade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := newTestCase(t, s)

	d1 := addDocument(t, s, c.UUID)
	d2 := addDocument(t, s, c.UUID)

	done, err := s.AllDocumentsTerminal(ctx, c.UUID)
	require.NoError(t, err)
	assert.False(t, done, "uploaded documents must hold the cascade")

	require.NoError(t, s.SetDocumentStatus(ctx, d1.ID, core.DocExtracted))
	done, err = s.AllDocumentsTerminal(ctx, c.UUID)
	require.NoError(t, err)
	assert.False(t, done, "one pending document must hold the cascade")

	// A failed document is terminal too: it never blocks the rest.
	require.NoError(t, s.FailDocument(ctx, d2.ID, "unreadable scan"))
	done, err = s.AllDocumentsTerminal(ctx, c.UUID)
	require.NoError(t, err)
	assert.True(t, done)
}
