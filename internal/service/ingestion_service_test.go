package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/crm-pipeline/internal/errors"
	"github.com/unclebandit/crm-pipeline/internal/service"
)

func TestIngestThenReadBack(t *testing.T) {
	ctx := context.Background()
	repo := &MockCustomerRepo{}
	svc := &service.IngestionService{CustomerRepo: repo, Log: zap.NewNop()}

	err := svc.HandleMessage(ctx, []byte(`{"name":"Ana","email":"ana@example.com","totalSpends":1200.5,"visits":4,"lastVisit":"2024-05-01"}`))
	require.NoError(t, err)

	got, err := repo.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, 1200.5, got.TotalSpends)
	assert.Equal(t, 4, got.Visits)
	require.NotNil(t, got.LastVisit)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *got.LastVisit)
}

func TestIngestTwiceOverwritesWholeRecord(t *testing.T) {
	ctx := context.Background()
	repo := &MockCustomerRepo{}
	svc := &service.IngestionService{CustomerRepo: repo, Log: zap.NewNop()}

	require.NoError(t, svc.HandleMessage(ctx, []byte(`{"name":"Ana","email":"ana@example.com","totalSpends":100,"visits":2,"lastVisit":"2024-05-01"}`)))
	first, _ := repo.GetByEmail(ctx, "ana@example.com")

	require.NoError(t, svc.HandleMessage(ctx, []byte(`{"name":"Ana B","email":"ana@example.com","visits":7}`)))

	assert.Equal(t, 1, repo.count())
	got, err := repo.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "Ana B", got.Name)
	assert.Equal(t, 0.0, got.TotalSpends)
	assert.Equal(t, 7, got.Visits)
	assert.Nil(t, got.LastVisit)
}

func TestIngestDefaultsCounters(t *testing.T) {
	ctx := context.Background()
	repo := &MockCustomerRepo{}
	svc := &service.IngestionService{CustomerRepo: repo, Log: zap.NewNop()}

	require.NoError(t, svc.HandleMessage(ctx, []byte(`{"name":"Ben","email":"ben@example.com"}`)))
	got, _ := repo.GetByEmail(ctx, "ben@example.com")
	assert.Equal(t, 0.0, got.TotalSpends)
	assert.Equal(t, 0, got.Visits)
}

func TestIngestMalformedPayload(t *testing.T) {
	svc := &service.IngestionService{CustomerRepo: &MockCustomerRepo{}, Log: zap.NewNop()}

	for name, payload := range map[string]string{
		"not json":      `{"email":`,
		"missing email": `{"name":"Ana"}`,
		"bad date":      `{"email":"a@x.io","lastVisit":"last tuesday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := svc.HandleMessage(context.Background(), []byte(payload))
			assert.ErrorIs(t, err, appErrors.ErrMalformedMessage)
		})
	}
}

func TestIngestStoreFailureIsReturned(t *testing.T) {
	svc := &service.IngestionService{CustomerRepo: &MockCustomerRepo{fail: true}, Log: zap.NewNop()}
	err := svc.HandleMessage(context.Background(), []byte(`{"name":"Ana","email":"ana@example.com"}`))
	assert.ErrorIs(t, err, errStoreDown)
}
