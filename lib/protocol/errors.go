package protocol

import "fmt"

// Response codes the server understands. Zero is success, one is the
// generic "something broke" bucket, everything else is a specific
// ActionError the client can react to.
const (
	CodeOK           uint16 = 0
	CodeGenericError uint16 = 1
)

const (
	CodeBadRequest         uint16 = 2
	CodeLoginFailed        uint16 = 50
	CodeNoSessionAvailable uint16 = 51
	CodeUnknownError       uint16 = 52
	CodeFailToGetCaptcha   uint16 = 53
	CodeWrongCaptcha       uint16 = 54
)

// ActionError is an error with a stable wire code. Msg rides in the
// response payload as plain utf-8 text so the far end can show it to
// a human.
type ActionError struct {
	Code uint16
	Msg  string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action failed (code %d): %s", e.Code, e.Msg)
}

var (
	ErrBadRequest         = &ActionError{Code: CodeBadRequest, Msg: "请求格式不正确"}
	ErrLoginFailed        = &ActionError{Code: CodeLoginFailed, Msg: "登录失败, 用户名或密码错误"}
	ErrNoSessionAvailable = &ActionError{Code: CodeNoSessionAvailable, Msg: "没有可用的会话"}
	ErrUnknown            = &ActionError{Code: CodeUnknownError, Msg: "未知错误"}
	ErrFailToGetCaptcha   = &ActionError{Code: CodeFailToGetCaptcha, Msg: "无法获取验证码"}
	ErrWrongCaptcha       = &ActionError{Code: CodeWrongCaptcha, Msg: "验证码识别错误"}
)
