package handler

import (
	"net/http"
	"strconv"

	"SProject/middleware"
	midsec "SProject/middleware/security"
	"SProject/module/directory"
	"SProject/module/talk/model"
	"SProject/service/chat"
	errs "SProject/tools/errs"

	"github.com/gin-gonic/gin"
)

// API REST 回退面：历史分页、发消息、已读回执。
// 与流式共用同一条发送通道（chat.Server.HandleSend），语义完全一致。
type API struct {
	Srv *chat.Server
}

func NewAPI(srv *chat.Server) *API { return &API{Srv: srv} }

// Register 挂路由；全部走鉴权中间件。
func (a *API) Register(r gin.IRoutes) {
	opt := middleware.RouteOpt{Auth: a.Srv.Auth}
	middleware.GET(r, "/api/messages", a.History, opt)
	middleware.POST(r, "/api/messages", a.Send, opt)
	middleware.POST(r, "/api/messages/mark-read", a.MarkRead, opt)
	middleware.GET(r, "/api/messages/unread", a.Unread, opt)
}

// ===== 请求/响应体 =====

type sendReq struct {
	ConversationType string             `json:"conversationType" binding:"required"`
	ConversationID   string             `json:"conversationId" binding:"required"`
	Text             string             `json:"text"`
	Attachments      []model.Attachment `json:"attachments"`
}

type markReadReq struct {
	ConversationType string `json:"conversationType" binding:"required"`
	ConversationID   string `json:"conversationId" binding:"required"`
	MessageID        string `json:"messageId"` // 空 -> 最新一条
}

type pageResp struct {
	Messages   []*model.MessageModel `json:"messages"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

// ===== 错误映射 =====

func httpStatus(code int) int {
	switch code {
	case errs.UnauthenticatedError:
		return http.StatusUnauthorized
	case errs.ForbiddenError:
		return http.StatusForbidden
	case errs.RecordNotFoundError:
		return http.StatusNotFound
	case errs.ValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	body := gin.H{"code": code, "msg": err.Error()}
	if code == errs.ServerInternalError {
		// 内部细节不外泄
		body["msg"] = "server internal error"
	}
	c.AbortWithStatusJSON(httpStatus(code), body)
}

func (a *API) resolve(c *gin.Context, convType, convID string) (*directory.Resolution, directory.Principal, bool) {
	p, ok := midsec.PrincipalFrom(c)
	if !ok {
		writeErr(c, errs.ErrUnauthenticated.Wrap())
		return nil, p, false
	}
	kind, err := directory.ParseKind(convType)
	if err != nil {
		writeErr(c, err)
		return nil, p, false
	}
	key := directory.Key{Kind: kind, ID: convID}
	if err := key.Valid(); err != nil {
		writeErr(c, err)
		return nil, p, false
	}
	res, err := a.Srv.Dir.Resolve(c.Request.Context(), key, p)
	if err != nil {
		writeErr(c, err)
		return nil, p, false
	}
	return res, p, true
}

// ===== handlers =====

// History GET /api/messages  newest-first 分页。
func (a *API) History(c *gin.Context) {
	res, _, ok := a.resolve(c, c.Query("conversationType"), c.Query("conversationId"))
	if !ok {
		return
	}

	pageSize := 0
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErr(c, errs.ErrValidation.WrapMsg("bad pageSize", "pageSize", v))
			return
		}
		pageSize = n
	}

	msgs, next, err := a.Srv.Store.Page(c.Request.Context(), res.ConvID, c.Query("cursor"), pageSize)
	if err != nil {
		writeErr(c, err)
		return
	}
	if msgs == nil {
		msgs = []*model.MessageModel{}
	}
	c.JSON(http.StatusOK, pageResp{Messages: msgs, NextCursor: next})
}

// Send POST /api/messages  落库 + 在线推送（发送方所有连接都会收到 message.new）。
func (a *API) Send(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, errs.ErrValidation.WrapMsg("bad request body", "err", err.Error()))
		return
	}
	p, ok := midsec.PrincipalFrom(c)
	if !ok {
		writeErr(c, errs.ErrUnauthenticated.Wrap())
		return
	}
	kind, err := directory.ParseKind(req.ConversationType)
	if err != nil {
		writeErr(c, err)
		return
	}

	stored, err := a.Srv.HandleSend(c.Request.Context(),
		directory.Key{Kind: kind, ID: req.ConversationID}, p,
		req.Text, req.Attachments, "")
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// MarkRead POST /api/messages/mark-read  幂等；旧游标静默 no-op。
func (a *API) MarkRead(c *gin.Context) {
	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, errs.ErrValidation.WrapMsg("bad request body", "err", err.Error()))
		return
	}
	res, p, ok := a.resolve(c, req.ConversationType, req.ConversationID)
	if !ok {
		return
	}
	if err := a.Srv.Tracker.MarkRead(c.Request.Context(), p.UserID, res.ConvID, req.MessageID); err != nil {
		writeErr(c, err)
		return
	}
	a.Srv.NotifyRead(p.UserID, req.ConversationType, req.ConversationID, req.MessageID)
	c.Status(http.StatusNoContent)
}

// Unread GET /api/messages/unread
func (a *API) Unread(c *gin.Context) {
	res, p, ok := a.resolve(c, c.Query("conversationType"), c.Query("conversationId"))
	if !ok {
		return
	}
	n, err := a.Srv.Tracker.Unread(c.Request.Context(), p.UserID, res.ConvID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}
