package chat

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SProject/module/directory"
	"SProject/module/talk"
	"SProject/service/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type wsClient struct {
	t *testing.T
	c *websocket.Conn
}

func dialWS(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &wsClient{t: t, c: c}
}

func (w *wsClient) send(v string) {
	w.t.Helper()
	if err := w.c.WriteMessage(websocket.TextMessage, []byte(v)); err != nil {
		w.t.Fatalf("write: %v", err)
	}
}

func (w *wsClient) expect(ft FrameType) *Frame {
	w.t.Helper()
	_ = w.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := w.c.ReadMessage()
	if err != nil {
		w.t.Fatalf("read (waiting for %s): %v", ft, err)
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		w.t.Fatalf("unmarshal: %v", err)
	}
	if f.Type != ft {
		w.t.Fatalf("got %s, want %s (payload=%v)", f.Type, ft, f.Payload)
	}
	return &f
}

func (w *wsClient) expectSilence(d time.Duration) {
	w.t.Helper()
	_ = w.c.SetReadDeadline(time.Now().Add(d))
	if _, raw, err := w.c.ReadMessage(); err == nil {
		w.t.Fatalf("unexpected frame: %s", raw)
	}
}

func TestWebSocketEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := talk.NewMemStore()
	dir := directory.NewMemResolver()
	dir.PutClass("7a", "teacher1", "stu1")

	authn := auth.NewStatic()
	authn.Put("tok-teacher1", directory.Principal{UserID: "teacher1", Role: "teacher"})
	authn.Put("tok-stu1", directory.Principal{UserID: "stu1", Role: "student"})

	srv := NewServer(ServerOptions{GatewayID: "gw-e2e", Manager: ManagerConf{SweepEvery: time.Hour}},
		authn, dir, store, talk.NewTracker(store, store))
	t.Cleanup(srv.Close)

	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	teacher := dialWS(t, ts)
	student := dialWS(t, ts)

	teacher.expect(FrameConnAck)
	student.expect(FrameConnAck)

	teacher.send(`{"type":"authenticate","payload":{"token":"tok-teacher1"}}`)
	teacher.expect(FrameAuthAck)
	student.send(`{"type":"authenticate","payload":{"token":"tok-stu1"}}`)
	student.expect(FrameAuthAck)

	teacher.send(`{"type":"subscribe","payload":{"conversationType":"class","conversationId":"7a"}}`)
	teacher.expect(FrameSubAck)
	student.send(`{"type":"subscribe","payload":{"conversationType":"class","conversationId":"7a"}}`)
	student.expect(FrameSubAck)

	teacher.send(`{"type":"send","payload":{"conversationType":"class","conversationId":"7a","text":"homework is up"}}`)
	teacher.expect(FrameSendAck)

	f := student.expect(FrameMessageNew)
	payload, ok := f.Payload.(map[string]any)
	if !ok || payload["text"] != "homework is up" || payload["senderId"] != "teacher1" {
		t.Fatalf("message.new payload: %+v", f.Payload)
	}
	if payload["seq"].(float64) != 1 {
		t.Fatalf("seq: %v", payload["seq"])
	}

	// 发送方自己的连接不收推送
	teacher.expectSilence(200 * time.Millisecond)
}

func TestWebSocketAuthErrorThenRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := talk.NewMemStore()
	dir := directory.NewMemResolver()
	dir.PutClass("7a", "stu1")

	authn := auth.NewStatic()
	authn.Put("tok-stu1", directory.Principal{UserID: "stu1", Role: "student"})

	srv := NewServer(ServerOptions{GatewayID: "gw-e2e", Manager: ManagerConf{SweepEvery: time.Hour}},
		authn, dir, store, talk.NewTracker(store, store))
	t.Cleanup(srv.Close)

	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	cli := dialWS(t, ts)
	cli.expect(FrameConnAck)

	cli.send(`{"type":"authenticate","payload":{"token":"nope"}}`)
	cli.expect(FrameAuthError)

	// 宽限期内重试成功
	cli.send(`{"type":"authenticate","payload":{"token":"tok-stu1"}}`)
	cli.expect(FrameAuthAck)
}
