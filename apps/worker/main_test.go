package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/services/queue"
	"github.com/trezcool/warsha/tests"
)

func TestServe(t *testing.T) {
	logger := new(testutil.Logger)
	backend := queue.NewMemory(watermill.NopLogger{})
	defer func() { _ = backend.Close() }()

	conf := core.QueueConfig{Topic: "warsha-jobs", MaxRetries: 1}
	worker, err := queue.NewWorker(backend, dispatch.NewRegistry(), conf, nil, logger, watermill.NopLogger{})
	require.NoError(t, err)

	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, worker, srv, time.Second, logger) }()

	select {
	case <-worker.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not start")
	}
	cancel()

	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Empty(t, logger.Errors)
}

func TestServe_metricsFailure(t *testing.T) {
	logger := new(testutil.Logger)
	backend := queue.NewMemory(watermill.NopLogger{})
	defer func() { _ = backend.Close() }()

	worker, err := queue.NewWorker(backend, dispatch.NewRegistry(), core.QueueConfig{Topic: "warsha-jobs"}, nil, logger, watermill.NopLogger{})
	require.NoError(t, err)

	srv := &http.Server{Addr: "not-an-address", Handler: http.NotFoundHandler()}
	err = serve(context.Background(), worker, srv, time.Second, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serving metrics")
}
