package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"nhooyr.io/websocket"

	"github.com/okian/nocaptcha/internal/capture"
	"github.com/okian/nocaptcha/internal/domain/aggregate"
	"github.com/okian/nocaptcha/internal/domain/model"
	"github.com/okian/nocaptcha/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type outcome struct {
	err       error
	state     capture.State
	device    aggregate.Device
	malformed int
}

// captureServer runs one capture session per connection and reports how it ended.
func captureServer(results chan<- outcome) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusInternalError, "")

		src := NewSource(c, nil)
		s := capture.New()
		err = s.Run(r.Context(), src, src, src.Run)
		if err == nil {
			_ = src.Reply(r.Context(), map[string]string{"message": "ok", "id": s.ID()})
			_ = c.Close(websocket.StatusNormalClosure, "done")
		}
		results <- outcome{err: err, state: s.Snapshot(), device: src.Device(), malformed: src.Malformed()}
	}))
}

func dial(ctx context.Context, srv *httptest.Server) *websocket.Conn {
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	So(err, ShouldBeNil)
	return c
}

func send(ctx context.Context, c *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	So(err, ShouldBeNil)
	So(c.Write(ctx, websocket.MessageText, b), ShouldBeNil)
}

func TestSource(t *testing.T) {
	Convey("Given a capture server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		results := make(chan outcome, 1)
		srv := captureServer(results)
		c := dial(ctx, srv)

		Reset(func() {
			_ = c.Close(websocket.StatusNormalClosure, "")
			srv.Close()
			cancel()
		})

		Convey("When a client streams frames and submits", func() {
			width := 1280
			send(ctx, c, Message{Frame: capture.Frame{Type: FrameEnv}, Env: &aggregate.Device{UserAgent: "test-agent", ScreenWidth: width, ScreenHeight: 720}})
			send(ctx, c, Message{Frame: capture.MouseFrame(model.MouseSample{Kind: model.MouseMove, X: 1, Y: 2, T: 1})})
			send(ctx, c, Message{Frame: capture.KeyFrame(model.KeySample{Kind: model.KeyDown, Key: "a", T: 2})})
			send(ctx, c, Message{Frame: capture.MotionFrame(model.Motion{Interval: 16})})
			send(ctx, c, map[string]string{"type": "mouse"})
			So(c.Write(ctx, websocket.MessageText, []byte("{not json")), ShouldBeNil)
			send(ctx, c, Message{Frame: capture.Frame{Type: FrameSubmit}})

			_, data, err := c.Read(ctx)
			So(err, ShouldBeNil)
			res := <-results

			Convey("Then the session holds the streamed signals", func() {
				So(res.err, ShouldBeNil)
				So(res.state.Buffers.Mouse, ShouldHaveLength, 1)
				So(res.state.Buffers.Keyboard, ShouldHaveLength, 1)
				So(res.state.Motion, ShouldNotBeNil)
			})

			Convey("Then the environment is taken from the env frame", func() {
				So(res.device.UserAgent, ShouldEqual, "test-agent")
				So(res.device.ScreenWidth, ShouldEqual, 1280)
			})

			Convey("Then malformed frames are counted and skipped", func() {
				So(res.malformed, ShouldEqual, 2)
			})

			Convey("Then the client receives the reply", func() {
				var reply map[string]string
				So(json.Unmarshal(data, &reply), ShouldBeNil)
				So(reply["message"], ShouldEqual, "ok")
				So(reply["id"], ShouldEqual, res.state.ID)
			})
		})

		Convey("When the client leaves without submitting", func() {
			send(ctx, c, Message{Frame: capture.MouseFrame(model.MouseSample{Kind: model.MouseMove})})
			So(c.Close(websocket.StatusNormalClosure, "bye"), ShouldBeNil)
			res := <-results

			Convey("Then the session ends without a submission", func() {
				So(errors.Is(res.err, ErrNoSubmit), ShouldBeTrue)
			})
		})
	})
}
