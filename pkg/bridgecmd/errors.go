package bridgecmd

// BindError enumerates the ways a bind-protocol operation can fail.
// Each variant carries a fixed, user-facing message, mirroring the
// reference implementation's BindErr enum.
type BindError int

const (
	ErrAlreadyMapping BindError = iota
	ErrInvalidToken
	ErrNoApply
	ErrNotFoundBridgeUser
	ErrNotFoundToken
	ErrNoResponded
	ErrSelfReference
	ErrUpdateBridgeUserFailure
)

var bindErrorText = map[BindError]string{
	ErrAlreadyMapping:          "您与该账户已经存在关联。",
	ErrInvalidToken:            "无效的口令！",
	ErrNoApply:                 "您未申请绑定，或申请已被重置。",
	ErrNotFoundBridgeUser:      "获取用户信息失败！",
	ErrNotFoundToken:           "无效的口令！",
	ErrNoResponded:             "您的关联申请暂未收获回应。",
	ErrSelfReference:           "自引用操作无效！",
	ErrUpdateBridgeUserFailure: "更新关联失败！",
}

func (e BindError) Error() string {
	if s, ok := bindErrorText[e]; ok {
		return s
	}
	return "绑定操作失败。"
}
