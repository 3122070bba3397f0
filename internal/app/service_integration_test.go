package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/nocaptcha/internal/adapters/repository"
	service "github.com/okian/nocaptcha/internal/app"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service with a memory store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store := repository.NewMemoryStore()
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(1000),
			service.WithDedupeSize(500),
			service.WithStore(store),
		)
		So(svc.Start(ctx), ShouldBeNil)

		Reset(func() {
			_ = svc.Stop(ctx)
			cancel()
		})

		Convey("When submissions are enqueued", func() {
			for i := 0; i < 50; i++ {
				So(svc.Enqueue(ctx, submission(fmt.Sprintf("session-%d", i))), ShouldBeNil)
			}

			Convey("Then workers persist all of them", func() {
				deadline := time.Now().Add(5 * time.Second)
				for time.Now().Before(deadline) {
					if n, _ := store.Count(ctx); n == 50 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 50)

				got, err := svc.Get(ctx, "session-7")
				So(err, ShouldBeNil)
				So(got.Payload.SessionID, ShouldEqual, "session-7")
				So(svc.GetStats()["storedSubmissions"], ShouldEqual, 50)
			})
		})

		Convey("When the service stops with work still queued", func() {
			for i := 0; i < 200; i++ {
				So(svc.Enqueue(ctx, submission(fmt.Sprintf("drain-%d", i))), ShouldBeNil)
			}
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the queue is drained into the store", func() {
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 200)
			})
		})

		Convey("When an unknown session is requested", func() {
			_, err := svc.Get(ctx, "nope")

			Convey("Then it is not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
