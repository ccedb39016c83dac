package chat

import (
	"context"
	"net/http"
	"time"

	"SProject/logger"
	safe "SProject/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 网关前面有接入层做来源控制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS 流式入口：升级 -> 登记（未认证态）-> conn.ack -> 读循环。
// 写协程唯一持有写端；读循环退出即断开清理。
func (s *Server) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("ws upgrade failed: %v", err)
		return
	}

	w := s.CM.AddPending(conn)
	s.CM.AttachPongHandler(conn, w.ConnID)
	logger.Infof("ws connected: connID=%s remote=%v", w.ConnID, w.Remote)

	safe.SafeGo(func() { s.writeLoop(w) })

	if err := w.Push(EncodeFrame(BuildConnAck(w.ConnID))); err != nil {
		s.Disconnect(w.ConnID)
		return
	}
	s.readLoop(c.Request.Context(), w)
}

func (s *Server) readLoop(ctx context.Context, w *WsConn) {
	defer s.Disconnect(w.ConnID)

	w.Conn.SetReadLimit(maxFrameSize)
	for {
		mt, raw, err := w.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warnf("ws read error: connID=%s err=%v", w.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		s.disp.Dispatch(ctx, w, raw)
	}
}

// writeLoop 独占写端：队列消费 + 周期 ping；退出时关底层连接。
func (s *Server) writeLoop(w *WsConn) {
	t := time.NewTicker(pingInterval)
	defer func() {
		t.Stop()
		_ = w.Conn.Close()
	}()

	for {
		select {
		case <-w.Done():
			return
		case b := <-w.Send:
			_ = w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.Conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Warnf("ws write error: connID=%s err=%v", w.ConnID, err)
				s.Disconnect(w.ConnID)
				return
			}
		case <-t.C:
			_ = w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Disconnect(w.ConnID)
				return
			}
		}
	}
}
