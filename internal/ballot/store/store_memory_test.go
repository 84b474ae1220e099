package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"evoto/internal/ballot/models"
	"evoto/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func record(subject string, u models.Unit) *models.Record {
	return &models.Record{Subject: subject, Unit: u, Decision: "apruebo", SubmittedAt: time.Now()}
}

func (s *InMemoryStoreSuite) TestInsertAndList() {
	err := s.store.InsertAll(s.ctx, []*models.Record{
		record("sub-1", models.Unit{Type: "Depto", Number: "101"}),
		record("sub-1", models.Unit{Type: "Bodega", Number: "B-5"}),
	})
	s.Require().NoError(err)

	records, err := s.store.ListBySubject(s.ctx, "sub-1")
	s.Require().NoError(err)
	s.Len(records, 2)

	other, err := s.store.ListBySubject(s.ctx, "sub-2")
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *InMemoryStoreSuite) TestOneExistingRecordRejectsTheWholeBatch() {
	s.Require().NoError(s.store.InsertAll(s.ctx, []*models.Record{
		record("sub-1", models.Unit{Type: "Depto", Number: "102"}),
	}))

	err := s.store.InsertAll(s.ctx, []*models.Record{
		record("sub-1", models.Unit{Type: "Depto", Number: "101"}),
		record("sub-1", models.Unit{Type: "Depto", Number: "102"}),
		record("sub-1", models.Unit{Type: "Depto", Number: "103"}),
	})
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Equal(1, s.store.Count())
}

func (s *InMemoryStoreSuite) TestDuplicateWithinBatchIsRejected() {
	u := models.Unit{Type: "Depto", Number: "101"}
	err := s.store.InsertAll(s.ctx, []*models.Record{record("sub-1", u), record("sub-1", u)})
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Zero(s.store.Count())
}

func (s *InMemoryStoreSuite) TestSameUnitDifferentSubjects() {
	u := models.Unit{Type: "Depto", Number: "101"}
	s.Require().NoError(s.store.InsertAll(s.ctx, []*models.Record{record("owner-a", u)}))
	s.Require().NoError(s.store.InsertAll(s.ctx, []*models.Record{record("owner-b", u)}))
	s.Equal(2, s.store.Count())
}

func (s *InMemoryStoreSuite) TestConcurrentCommitsRecordOnce() {
	batch := func() []*models.Record {
		return []*models.Record{
			record("sub-1", models.Unit{Type: "Depto", Number: "101"}),
			record("sub-1", models.Unit{Type: "Bodega", Number: "B-5"}),
		}
	}
	const goroutines = 20
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.store.InsertAll(s.ctx, batch()); err {
			case nil:
				ok.Add(1)
			case sentinel.ErrConflict:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
	s.Equal(2, s.store.Count())
}
