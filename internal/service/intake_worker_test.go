package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"certintake/internal/domain"
	"certintake/internal/service"
	"certintake/mocks"
)

func workerConfig() service.IntakeWorkerConfig {
	return service.IntakeWorkerConfig{
		Bucket:        bucket,
		PendingPrefix: "to_process/import_iqc/",
		PollInterval:  10 * time.Millisecond,
		Concurrency:   2,
		BatchSize:     10,
		Timeout:       time.Second,
	}
}

func TestIntakeWorker_PollDispatchesEveryKey(t *testing.T) {
	storage := new(mocks.MockObjectStorage)
	intake := new(mocks.MockIntakeService)
	w := service.NewIntakeWorker(storage, intake, workerConfig())

	storage.On("List", mock.Anything, bucket, "to_process/import_iqc/", 10).Return([]domain.ObjectInfo{
		{Key: "to_process/import_iqc/a.eml"},
		{Key: "to_process/import_iqc/b.eml"},
	}, nil)
	intake.On("ProcessMessage", mock.Anything, "to_process/import_iqc/a.eml").Return(&service.IntakeOutcome{}, nil)
	intake.On("ProcessMessage", mock.Anything, "to_process/import_iqc/b.eml").
		Return(&service.IntakeOutcome{Kind: domain.KindInvalidInput}, nil)

	var g errgroup.Group
	g.SetLimit(2)
	n := w.Poll(context.Background(), &g)
	require.NoError(t, g.Wait())

	assert.Equal(t, 2, n)
	intake.AssertExpectations(t)
}

func TestIntakeWorker_InFlightKeyIsNotDispatchedTwice(t *testing.T) {
	storage := new(mocks.MockObjectStorage)
	intake := new(mocks.MockIntakeService)
	w := service.NewIntakeWorker(storage, intake, workerConfig())

	storage.On("List", mock.Anything, bucket, "to_process/import_iqc/", 10).
		Return([]domain.ObjectInfo{{Key: "to_process/import_iqc/slow.eml"}}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	intake.On("ProcessMessage", mock.Anything, "to_process/import_iqc/slow.eml").
		Run(func(mock.Arguments) {
			once.Do(func() { close(started) })
			<-release
		}).
		Return(&service.IntakeOutcome{}, nil).Once()

	var g errgroup.Group
	g.SetLimit(2)
	assert.Equal(t, 1, w.Poll(context.Background(), &g))
	<-started
	assert.Equal(t, 0, w.Poll(context.Background(), &g))

	close(release)
	require.NoError(t, g.Wait())
	intake.AssertNumberOfCalls(t, "ProcessMessage", 1)
}

func TestIntakeWorker_ListErrorDispatchesNothing(t *testing.T) {
	storage := new(mocks.MockObjectStorage)
	intake := new(mocks.MockIntakeService)
	w := service.NewIntakeWorker(storage, intake, workerConfig())

	storage.On("List", mock.Anything, bucket, "to_process/import_iqc/", 10).Return(nil, errors.New("throttled"))

	var g errgroup.Group
	assert.Equal(t, 0, w.Poll(context.Background(), &g))
	intake.AssertNotCalled(t, "ProcessMessage", mock.Anything, mock.Anything)
}

func TestIntakeWorker_StartStopsOnCancel(t *testing.T) {
	storage := new(mocks.MockObjectStorage)
	intake := new(mocks.MockIntakeService)
	w := service.NewIntakeWorker(storage, intake, workerConfig())

	storage.On("List", mock.Anything, bucket, "to_process/import_iqc/", 10).Return([]domain.ObjectInfo{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	storage.AssertCalled(t, "List", mock.Anything, bucket, "to_process/import_iqc/", 10)
}
