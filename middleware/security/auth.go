package security

import (
	"net/http"
	"strings"

	"SProject/module/directory"
	"SProject/service/auth"
	errs "SProject/tools/errs"

	"github.com/gin-gonic/gin"
)

// —— context key ——
const (
	CtxPrincipalKey = "principal" // *directory.Principal
	CtxTokenKey     = "authorization"
)

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true

	Auth auth.Authenticator
}

func DefaultOptions(a auth.Authenticator) *Options {
	return &Options{
		HeaderToken:               "authorization",
		EnableAuthorizationBearer: true,
		Auth:                      a,
	}
}

// Middleware REST 侧鉴权：每次调用都重新校验凭证（与流式的一次认证不同）。
// 缺失/非法凭证 -> 401 + 错误体。
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 头名大小写不敏感：authorization 与 Authorization 是同一个头
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx（裸 token 也接受）
		if opts.EnableAuthorizationBearer {
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[len("bearer "):])
			}
		}

		p, err := opts.Auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errs.UnauthenticatedError,
				"msg":  "unauthenticated",
			})
			return
		}

		c.Set(CtxTokenKey, token)
		c.Set(CtxPrincipalKey, p)
		c.Next()
	}
}

// PrincipalFrom 读取中间件写入的主体；没经过鉴权的路由返回 false。
func PrincipalFrom(c *gin.Context) (directory.Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return directory.Principal{}, false
	}
	p, ok := v.(*directory.Principal)
	if !ok || p == nil {
		return directory.Principal{}, false
	}
	return *p, true
}
