package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/nocaptcha/internal/adapters/mq/queue"
	worker "github.com/okian/nocaptcha/internal/adapters/mq/worker"
	model "github.com/okian/nocaptcha/internal/domain/model"
	logging "github.com/okian/nocaptcha/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

// mockSaver records saved submissions and fails for configured ids.
type mockSaver struct {
	mu    sync.Mutex
	saved []string
	fail  map[string]error
	delay time.Duration
}

func newMockSaver() *mockSaver {
	return &mockSaver{fail: make(map[string]error)}
}

func (m *mockSaver) Save(ctx context.Context, s model.Submission) error { //nolint:gocritic // hugeParam: matches the Saver interface
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[s.ID]; ok {
		return err
	}
	m.saved = append(m.saved, s.ID)
	return nil
}

func (m *mockSaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func sub(id string) model.Submission {
	return model.Submission{ID: id, Payload: model.Payload{SessionID: id}}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		saver := newMockSaver()
		w := worker.NewInMemoryWorker(q, saver, worker.WithName("test-worker"))

		convey.Convey("When submissions are queued and the queue is closed", func() {
			for i := 0; i < 3; i++ {
				convey.So(q.Enqueue(context.Background(), sub(fmt.Sprintf("s-%d", i))), convey.ShouldBeNil)
			}
			_ = q.Close()
			w.Run(context.Background())

			convey.Convey("Then every submission is saved before the worker exits", func() {
				convey.So(saver.count(), convey.ShouldEqual, 3)
				convey.So(w.Processed(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When a save fails", func() {
			saver.fail["bad"] = errors.New("disk full")
			convey.So(q.Enqueue(context.Background(), sub("bad")), convey.ShouldBeNil)
			convey.So(q.Enqueue(context.Background(), sub("good")), convey.ShouldBeNil)
			_ = q.Close()
			w.Run(context.Background())

			convey.Convey("Then the worker keeps going", func() {
				convey.So(saver.count(), convey.ShouldEqual, 1)
				convey.So(w.Processed(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a save fails on a worker with a failure hook", func() {
			diskFull := errors.New("disk full")
			saver.fail["bad"] = diskFull
			var failed []string
			var failErr error
			hooked := worker.NewInMemoryWorker(q, saver, worker.WithFailureHook(
				func(_ context.Context, s model.Submission, err error) { //nolint:gocritic // hugeParam: matches the hook signature
					failed = append(failed, s.ID)
					failErr = err
				}))
			convey.So(q.Enqueue(context.Background(), sub("bad")), convey.ShouldBeNil)
			convey.So(q.Enqueue(context.Background(), sub("good")), convey.ShouldBeNil)
			_ = q.Close()
			hooked.Run(context.Background())

			convey.Convey("Then the hook sees only the rejected submission", func() {
				convey.So(failed, convey.ShouldResemble, []string{"bad"})
				convey.So(errors.Is(failErr, diskFull), convey.ShouldBeTrue)
				convey.So(saver.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the worker is shut down while idle", func() {
			go w.Run(context.Background())
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			convey.Convey("Then it stops promptly", func() {
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When its context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()
			cancel()

			convey.Convey("Then Run returns", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("worker did not stop on context cancel")
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		saver := newMockSaver()
		p := worker.NewPool(4, q, saver)

		convey.Convey("Then it has the requested size", func() {
			convey.So(p.Size(), convey.ShouldEqual, 4)
		})

		convey.Convey("When submissions are queued and the pool shuts down", func() {
			p.Start(context.Background())
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(context.Background(), sub(fmt.Sprintf("s-%d", i))), convey.ShouldBeNil)
			}
			err := p.Shutdown(context.Background())

			convey.Convey("Then the queue is drained", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(saver.count(), convey.ShouldEqual, 50)
				convey.So(p.Processed(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the drain outlives its deadline", func() {
			saver.delay = 200 * time.Millisecond
			p.Start(context.Background())
			for i := 0; i < 20; i++ {
				_ = q.Enqueue(context.Background(), sub(fmt.Sprintf("slow-%d", i)))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.Convey("Then Shutdown reports the timeout", func() {
				convey.So(p.Shutdown(ctx), convey.ShouldNotBeNil)
			})
		})
	})

	convey.Convey("Given a pool with a non-positive size", t, func() {
		p := worker.NewPool(0, queue.NewInMemoryQueue(), newMockSaver())

		convey.Convey("Then it falls back to one worker per CPU", func() {
			convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
