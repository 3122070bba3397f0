package transport

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// recorder is a collector stand-in that keeps every decoded payload.
type recorder struct {
	mu       sync.Mutex
	payloads []model.Payload
	status   int
	delay    time.Duration
}

func (r *recorder) set(status int, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.delay = status, delay
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	status, delay := r.status, r.delay
	r.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	var p model.Payload
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
	w.WriteHeader(status)
}

func (r *recorder) first() model.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payloads[0]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestSubmitter(t *testing.T) {
	Convey("Given a submitter pointed at a collector", t, func() {
		rec := &recorder{status: http.StatusAccepted}
		srv := httptest.NewServer(rec)
		defer srv.Close()
		s := NewSubmitter(srv.URL+"/submit-data/", WithClient(srv.Client()), WithTimeout(time.Second))

		Convey("When a payload is submitted and drained", func() {
			err := s.Submit(context.Background(), model.Payload{SessionID: "s-1", SessionDuration: 42})
			So(err, ShouldBeNil)
			So(s.Drain(context.Background()), ShouldBeNil)

			Convey("Then the collector received exactly one request", func() {
				So(rec.count(), ShouldEqual, 1)
				So(rec.first().SessionID, ShouldEqual, "s-1")
				So(rec.first().SessionDuration, ShouldEqual, 42)
			})
		})

		Convey("When the caller's context is cancelled right after submitting", func() {
			rec.set(http.StatusAccepted, 50*time.Millisecond)
			ctx, cancel := context.WithCancel(context.Background())
			So(s.Submit(ctx, model.Payload{SessionID: "s-2"}), ShouldBeNil)
			cancel()
			So(s.Drain(context.Background()), ShouldBeNil)

			Convey("Then the request still completes", func() {
				So(rec.count(), ShouldEqual, 1)
			})
		})

		Convey("When the collector rejects the payload", func() {
			rec.set(http.StatusInternalServerError, 0)
			So(s.Submit(context.Background(), model.Payload{SessionID: "s-3"}), ShouldBeNil)
			So(s.Drain(context.Background()), ShouldBeNil)

			Convey("Then it is not retried", func() {
				So(rec.count(), ShouldEqual, 1)
			})
		})

		Convey("When submitting after drain", func() {
			So(s.Drain(context.Background()), ShouldBeNil)
			err := s.Submit(context.Background(), model.Payload{SessionID: "late"})

			Convey("Then it is refused", func() {
				So(errors.Is(err, ErrClosed), ShouldBeTrue)
			})
		})

		Convey("When drain outlives its context", func() {
			rec.set(http.StatusAccepted, 300*time.Millisecond)
			So(s.Submit(context.Background(), model.Payload{SessionID: "slow"}), ShouldBeNil)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			Convey("Then it reports the deadline", func() {
				So(errors.Is(s.Drain(ctx), context.DeadlineExceeded), ShouldBeTrue)
				So(s.Drain(context.Background()), ShouldBeNil)
			})
		})
	})

	Convey("Given a submitter pointed at an unreachable endpoint", t, func() {
		s := NewSubmitter("http://127.0.0.1:1/submit-data/", WithTimeout(200*time.Millisecond))

		Convey("When a payload is submitted", func() {
			err := s.Submit(context.Background(), model.Payload{SessionID: "s-4"})

			Convey("Then Submit still returns immediately without error", func() {
				So(err, ShouldBeNil)
				So(s.Drain(context.Background()), ShouldBeNil)
			})
		})
	})

	Convey("Given a submitter with a result hook", t, func() {
		rec := &recorder{status: http.StatusAccepted}
		srv := httptest.NewServer(rec)
		var (
			mu       sync.Mutex
			outcomes = map[string]error{}
		)
		s := NewSubmitter(srv.URL, WithResultHook(func(id string, err error) {
			mu.Lock()
			defer mu.Unlock()
			outcomes[id] = err
		}))

		Reset(srv.Close)

		Convey("When one payload is accepted and one rejected", func() {
			So(s.Submit(context.Background(), model.Payload{SessionID: "ok"}), ShouldBeNil)
			So(s.Drain(context.Background()), ShouldBeNil)

			rec.set(http.StatusBadRequest, 0)
			s2 := NewSubmitter(srv.URL, WithResultHook(func(id string, err error) {
				mu.Lock()
				defer mu.Unlock()
				outcomes[id] = err
			}))
			So(s2.Submit(context.Background(), model.Payload{SessionID: "bad"}), ShouldBeNil)
			So(s2.Drain(context.Background()), ShouldBeNil)

			Convey("Then the hook sees both outcomes", func() {
				mu.Lock()
				defer mu.Unlock()
				So(outcomes, ShouldContainKey, "ok")
				So(outcomes["ok"], ShouldBeNil)
				So(errors.Is(outcomes["bad"], ErrRejected), ShouldBeTrue)
			})
		})
	})

	Convey("Given a session whose device reported non-finite readings", t, func() {
		rec := &recorder{status: http.StatusAccepted}
		srv := httptest.NewServer(rec)
		Reset(srv.Close)

		nan, inf, beta := math.NaN(), math.Inf(1), 12.5
		surface, global := capture.NewReplaySource(), capture.NewReplaySource()
		sess := capture.New(capture.WithID("nan-1"))
		So(sess.Mount(surface, global), ShouldBeNil)
		So(global.Emit(capture.OrientationFrame(model.Orientation{Alpha: &nan, Beta: &beta})), ShouldBeNil)
		So(global.Emit(capture.MotionFrame(model.Motion{Interval: inf, RotationRate: &model.Rotation{Gamma: &inf}})), ShouldBeNil)
		So(surface.Emit(capture.MouseFrame(model.MouseSample{Kind: model.MouseMove, X: nan})), ShouldBeNil)
		So(surface.Emit(capture.MouseFrame(model.MouseSample{Kind: model.MouseMove, X: 1, Y: 1, T: 5})), ShouldBeNil)
		state := sess.Snapshot()
		sess.Close()

		Convey("When the payload is built and submitted", func() {
			p := aggregate.New(nil).Build(context.Background(), state, nil)
			s := NewSubmitter(srv.URL, WithClient(srv.Client()))
			err := s.Submit(context.Background(), p)
			So(s.Drain(context.Background()), ShouldBeNil)

			Convey("Then it is delivered with the bad readings reported as missing", func() {
				So(err, ShouldBeNil)
				So(rec.count(), ShouldEqual, 1)
				got := rec.first()
				So(got.SessionID, ShouldEqual, "nan-1")
				So(got.DeviceOrientation, ShouldNotBeNil)
				So(got.DeviceOrientation.Alpha, ShouldBeNil)
				So(*got.DeviceOrientation.Beta, ShouldEqual, 12.5)
				So(got.DeviceMotion.Interval, ShouldEqual, 0)
				So(got.DeviceMotion.RotationRate.Gamma, ShouldBeNil)
				So(got.InteractionData.Mouse, ShouldHaveLength, 1)
			})
		})
	})
}
