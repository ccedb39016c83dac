package middleware

import (
	midsec "SProject/middleware/security"
	"SProject/service/auth"

	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	Auth auth.Authenticator // 非 nil 则挂鉴权中间件
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.Auth != nil {
		r.POST(path, midsec.Middleware(midsec.DefaultOptions(opt.Auth)), handler)
	} else {
		r.POST(path, handler)
	}
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.Auth != nil {
		r.GET(path, midsec.Middleware(midsec.DefaultOptions(opt.Auth)), handler)
	} else {
		r.GET(path, handler)
	}
}
