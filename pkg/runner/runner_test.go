package runner_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slapcommerce/core-sub014/pkg/runner"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func service(rec *recorder, name string, startErr error) runner.Service {
	return runner.NewService(name,
		func(ctx context.Context) error {
			rec.add("start " + name)
			return startErr
		},
		func(ctx context.Context) error {
			rec.add("stop " + name)
			return nil
		})
}

func TestRunStartsAndStops(t *testing.T) {
	rec := &recorder{}
	r := runner.New([]runner.Service{
		service(rec, "store", nil),
		service(rec, "http", nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	// Give startup a moment, then trigger shutdown.
	require.Eventually(t, func() bool {
		return len(rec.list()) == 2
	}, time.Second, 10*time.Millisecond)
	cancel()

	require.NoError(t, <-errCh)
	assert.ElementsMatch(t,
		[]string{"start store", "start http", "stop store", "stop http"},
		rec.list())
	assert.Equal(t, []string{"start store", "start http"}, rec.list()[:2])
}

func TestStartFailureStopsStartedServices(t *testing.T) {
	rec := &recorder{}
	r := runner.New([]runner.Service{
		service(rec, "store", nil),
		service(rec, "broken", fmt.Errorf("listen failed")),
		service(rec, "never", nil),
	})

	err := r.Run(context.Background())
	require.ErrorContains(t, err, "start service broken")

	events := rec.list()
	assert.Contains(t, events, "stop store")
	assert.NotContains(t, events, "start never")
}

func TestShutdownTimeout(t *testing.T) {
	stuck := runner.NewService("stuck",
		nil,
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

	r := runner.New([]runner.Service{stuck},
		runner.WithShutdownTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx)
	assert.Error(t, err)
}
