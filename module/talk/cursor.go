package talk

import (
	"encoding/base64"
	"encoding/json"

	errs "SProject/tools/errs"
)

// 游标：不透明 token，内部只是「下一页从哪个 seq 之前继续」。
// 对外永远 base64url，客户端不应解析。
type cursorToken struct {
	BeforeSeq int64 `json:"s"`
}

// EncodeCursor 由 seq 生成下一页游标。
func EncodeCursor(beforeSeq int64) string {
	b, _ := json.Marshal(cursorToken{BeforeSeq: beforeSeq})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor 解析游标；空串表示「取最新一页」，返回 0。
// 垃圾输入统一 ValidationError。
func DecodeCursor(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return 0, errs.ErrValidation.WrapMsg("malformed cursor")
	}
	var tok cursorToken
	if err := json.Unmarshal(raw, &tok); err != nil || tok.BeforeSeq <= 0 {
		return 0, errs.ErrValidation.WrapMsg("malformed cursor")
	}
	return tok.BeforeSeq, nil
}
