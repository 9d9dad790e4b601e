package code

// HTTP状态码.
const (
	// StatusOK - 200: 成功.
	StatusOK = 200
	// StatusBadRequest - 400: 请求参数错误.
	StatusBadRequest = 400
	// StatusUnauthorized - 401: 未授权.
	StatusUnauthorized = 401
	// StatusForbidden - 403: 禁止访问.
	StatusForbidden = 403
	// StatusNotFound - 404: 资源不存在.
	StatusNotFound = 404
	// StatusConflict - 409: 状态冲突.
	StatusConflict = 409
	// StatusTooManyRequests - 429: 请求过多.
	StatusTooManyRequests = 429
	// StatusInternalServerError - 500: 服务器内部错误.
	StatusInternalServerError = 500
)

// 通用错误码 (100xxx).
const (
	// ErrSuccess - 200: 成功.
	ErrSuccess int = iota + 100000
	// ErrUnknown - 500: 未知错误.
	ErrUnknown
	// ErrBind - 400: 请求参数绑定错误.
	ErrBind
	// ErrValidation - 400: 请求参数验证错误.
	ErrValidation
	// ErrTokenInvalid - 401: 令牌无效.
	ErrTokenInvalid
	// ErrTooManyRequests - 429: 请求频率过高.
	ErrTooManyRequests
	// ErrAccessDenied - 403: 角色或站点权限不足.
	ErrAccessDenied
)

// 用户相关错误码 (101xxx).
const (
	// ErrUserNotFound - 404: 用户不存在.
	ErrUserNotFound int = iota + 101000
	// ErrUserDisabled - 403: 用户已停用.
	ErrUserDisabled
	// ErrUserPasswordIncorrect - 401: 用户名或密码错误.
	ErrUserPasswordIncorrect
)

// 数据库相关错误码 (105xxx).
const (
	// ErrDatabase - 500: 数据库错误.
	ErrDatabase int = iota + 105000
	// ErrRecordNotFound - 404: 记录不存在.
	ErrRecordNotFound
)

// 出入登记相关错误码 (106xxx).
const (
	// ErrSiteNotFound - 404: 站点不存在.
	ErrSiteNotFound int = iota + 106000
	// ErrSiteInactive - 409: 站点已停用.
	ErrSiteInactive
	// ErrEntryNotFound - 404: 登记记录不存在.
	ErrEntryNotFound
	// ErrAlreadyExited - 409: 登记记录已离场.
	ErrAlreadyExited
	// ErrEmergencyActive - 409: 紧急模式下禁止新登记.
	ErrEmergencyActive
)

// 告警相关错误码 (107xxx).
const (
	// ErrAlertNotFound - 404: 告警不存在.
	ErrAlertNotFound int = iota + 107000
)

// 紧急模式相关错误码 (108xxx).
const (
	// ErrEmergencyNotFound - 404: 紧急模式记录不存在或已解除.
	ErrEmergencyNotFound int = iota + 108000
	// ErrEmergencyAlreadyActive - 409: 该范围已处于紧急模式.
	ErrEmergencyAlreadyActive
	// ErrEmergencyNotActive - 409: 紧急模式未激活.
	ErrEmergencyNotActive
)
