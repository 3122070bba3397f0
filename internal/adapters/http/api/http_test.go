package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"nhooyr.io/websocket"

	"github.com/okian/nocaptcha/internal/adapters/http/api"
	"github.com/okian/nocaptcha/internal/adapters/lookup"
	"github.com/okian/nocaptcha/internal/adapters/mq/queue"
	"github.com/okian/nocaptcha/internal/adapters/repository"
	"github.com/okian/nocaptcha/internal/adapters/ws"
	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// mockDependencies records enqueued submissions and serves stored ones.
type mockDependencies struct {
	mu         sync.Mutex
	seen       map[string]bool
	enqueueErr error
	enqueued   []model.Submission
	stored     map[string]model.Submission
	getErr     error
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{seen: map[string]bool{}, stored: map[string]model.Submission{}}
}

func (m *mockDependencies) SeenAndRecord(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDependencies) Unrecord(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
}

func (m *mockDependencies) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.seen))
}

func (m *mockDependencies) Enqueue(_ context.Context, s model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, s)
	return nil
}

func (m *mockDependencies) Get(_ context.Context, id string) (model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return model.Submission{}, m.getErr
	}
	s, ok := m.stored[id]
	if !ok {
		return model.Submission{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return s, nil
}

func (m *mockDependencies) submissions() []model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Submission(nil), m.enqueued...)
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies, opts ...api.ServerOption) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"queue_len": 0}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func post(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/submit-data/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMockDependencies())

		Convey("Then the health endpoint serves metrics", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint serves JSON", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "queue_len")
		})

		Convey("Then stats without a provider are unavailable", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			w := httptest.NewRecorder()
			api.NewStatsHandler(nil).HandleStats(w, req)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldContainSubstring, "unavailable")
		})

		Convey("Then the capture endpoint is not registered by default", func() {
			req := httptest.NewRequest(http.MethodGet, "/capture", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSubmitHandler(t *testing.T) {
	Convey("Given a submit endpoint", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When a valid payload is posted", func() {
			w := post(mux, `{"sessionId":"s-1","sessionDuration":1200,"userAgent":"ua","features":{"averageSpeed":1.5}}`)

			Convey("Then it is accepted and enqueued", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w), ShouldResemble, map[string]string{"message": "Data received successfully", "id": "s-1"})
				subs := deps.submissions()
				So(subs, ShouldHaveLength, 1)
				So(subs[0].ID, ShouldEqual, "s-1")
				So(subs[0].Payload.SessionDuration, ShouldEqual, 1200)
				So(subs[0].ReceivedAt.IsZero(), ShouldBeFalse)
			})

			Convey("And the same session is posted again", func() {
				again := post(mux, `{"sessionId":"s-1","sessionDuration":1200}`)

				Convey("Then it is acknowledged as a duplicate", func() {
					So(again.Code, ShouldEqual, http.StatusOK)
					So(decode(again)["id"], ShouldEqual, "s-1")
					So(deps.submissions(), ShouldHaveLength, 1)
				})
			})
		})

		Convey("When the payload has no session id", func() {
			w := post(mux, `{"sessionDuration":10}`)

			Convey("Then one is generated", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				id := decode(w)["id"]
				So(id, ShouldNotBeEmpty)
				So(deps.submissions()[0].ID, ShouldEqual, id)
			})
		})

		Convey("When the body is not JSON", func() {
			w := post(mux, `{not json`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the duration is negative", func() {
			w := post(mux, `{"sessionId":"s-2","sessionDuration":-5}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			deps.enqueueErr = queue.ErrFull
			w := post(mux, `{"sessionId":"s-3"}`)

			Convey("Then backpressure is reported and the id released", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode(w)["code"], ShouldEqual, "backpressure")
				So(deps.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the queue is closed", func() {
			deps.enqueueErr = queue.ErrClosed
			w := post(mux, `{"sessionId":"s-4"}`)

			Convey("Then the service is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(deps.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the method is not POST", func() {
			req := httptest.NewRequest(http.MethodGet, "/submit-data/", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSessionsHandler(t *testing.T) {
	Convey("Given a sessions endpoint with one stored submission", t, func() {
		deps := newMockDependencies()
		deps.stored["s-1"] = model.Submission{ID: "s-1", Payload: model.Payload{SessionID: "s-1", UserAgent: "ua"}}
		mux := newMux(deps)

		get := func(path string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			return w
		}

		Convey("When it is requested", func() {
			w := get("/sessions/s-1")

			Convey("Then it is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var sub model.Submission
				So(json.Unmarshal(w.Body.Bytes(), &sub), ShouldBeNil)
				So(sub.Payload.UserAgent, ShouldEqual, "ua")
			})
		})

		Convey("When an unknown id is requested", func() {
			w := get("/sessions/missing")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When no id is given", func() {
			w := get("/sessions/")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the store fails", func() {
			deps.getErr = repository.ErrBackend
			w := get("/sessions/s-1")

			Convey("Then it is an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestCORS(t *testing.T) {
	Convey("Given a server allowing one origin", t, func() {
		mux := newMux(newMockDependencies(), api.WithAllowedOrigins("http://localhost:5173"))

		Convey("When an allowed origin sends a preflight", func() {
			req := httptest.NewRequest(http.MethodOptions, "/submit-data/", nil)
			req.Header.Set("Origin", "http://localhost:5173")
			req.Header.Set("Access-Control-Request-Headers", "content-type")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then it is allowed with credentials", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://localhost:5173")
				So(w.Header().Get("Access-Control-Allow-Credentials"), ShouldEqual, "true")
				So(w.Header().Get("Access-Control-Allow-Headers"), ShouldEqual, "content-type")
			})
		})

		Convey("When another origin posts", func() {
			req := httptest.NewRequest(http.MethodPost, "/submit-data/", strings.NewReader(`{"sessionId":"x"}`))
			req.Header.Set("Origin", "http://evil.example")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then no CORS headers are granted", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
			})
		})
	})
}

func TestCaptureHandler(t *testing.T) {
	Convey("Given a server with websocket capture", t, func() {
		deps := newMockDependencies()
		geo := lookup.NewStaticLocator("", lookup.Geo{City: "Lyon", Region: "ARA", Country: "FR"})
		handler := api.NewCaptureHandler(deps, api.WithGeoLocator(geo), api.WithBufferCapacity(100))
		srv := httptest.NewServer(newMux(deps, api.WithCapture(handler)))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/capture", nil)
		So(err, ShouldBeNil)

		Reset(func() {
			_ = c.Close(websocket.StatusNormalClosure, "")
			srv.Close()
			cancel()
		})

		Convey("When a client streams a session and submits", func() {
			for _, m := range sessionMessages() {
				b, err := json.Marshal(m)
				So(err, ShouldBeNil)
				So(c.Write(ctx, websocket.MessageText, b), ShouldBeNil)
			}
			_, data, err := c.Read(ctx)
			So(err, ShouldBeNil)

			Convey("Then the payload is aggregated and enqueued", func() {
				var reply map[string]string
				So(json.Unmarshal(data, &reply), ShouldBeNil)
				So(reply["message"], ShouldEqual, "Data received successfully")

				subs := deps.submissions()
				So(subs, ShouldHaveLength, 1)
				p := subs[0].Payload
				So(p.SessionID, ShouldEqual, reply["id"])
				So(p.UserAgent, ShouldEqual, "capture-test")
				So(p.ScreenResolution, ShouldEqual, "800x600")
				So(p.IPAddress, ShouldEqual, "127.0.0.1")
				So(p.Geolocation, ShouldEqual, "Lyon, ARA, FR")
				So(p.InteractionData.Mouse, ShouldHaveLength, 3)
			})
		})

		Convey("When a client disconnects without submitting", func() {
			b, _ := json.Marshal(ws.Message{Frame: mouseFrame(1)})
			So(c.Write(ctx, websocket.MessageText, b), ShouldBeNil)
			So(c.Close(websocket.StatusNormalClosure, "bye"), ShouldBeNil)

			Convey("Then nothing is enqueued", func() {
				time.Sleep(50 * time.Millisecond)
				So(deps.submissions(), ShouldBeEmpty)
			})
		})
	})
}

func mouseFrame(t float64) capture.Frame {
	return capture.MouseFrame(model.MouseSample{Kind: model.MouseMove, X: t * 3, Y: t * 4, T: t})
}

func sessionMessages() []ws.Message {
	return []ws.Message{
		{Frame: capture.Frame{Type: ws.FrameEnv}, Env: &aggregate.Device{UserAgent: "capture-test", ScreenWidth: 800, ScreenHeight: 600}},
		{Frame: mouseFrame(1)},
		{Frame: mouseFrame(2)},
		{Frame: mouseFrame(3)},
		{Frame: capture.Frame{Type: ws.FrameSubmit}},
	}
}

func TestErrorKinds(t *testing.T) {
	Convey("Given an op-tagged error", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then it matches both kind and cause", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		})

		Convey("Then a bare kind renders without a cause", func() {
			So(api.NewKind("api.op", api.ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
		})
	})
}
