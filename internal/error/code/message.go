package code

// 错误码消息映射
var codeMessageMap = map[int]string{
	// 通用错误码
	ErrSuccess:         "成功",
	ErrUnknown:         "未知错误",
	ErrBind:            "请求参数绑定错误",
	ErrValidation:      "请求参数验证错误",
	ErrTokenInvalid:    "无效的认证令牌",
	ErrTooManyRequests: "请求频率过高，请稍后再试",
	ErrAccessDenied:    "没有访问该站点的权限",

	// 用户相关错误码
	ErrUserNotFound:          "用户不存在",
	ErrUserDisabled:          "用户已停用",
	ErrUserPasswordIncorrect: "用户名或密码错误",

	// 数据库相关错误码
	ErrDatabase:       "数据库错误",
	ErrRecordNotFound: "记录不存在",

	// 出入登记相关错误码
	ErrSiteNotFound:    "站点不存在",
	ErrSiteInactive:    "站点已停用",
	ErrEntryNotFound:   "登记记录不存在",
	ErrAlreadyExited:   "该登记记录已离场",
	ErrEmergencyActive: "站点处于紧急模式，暂停新登记",

	// 告警相关错误码
	ErrAlertNotFound: "告警不存在",

	// 紧急模式相关错误码
	ErrEmergencyNotFound:      "紧急模式记录不存在或已解除",
	ErrEmergencyAlreadyActive: "该范围已处于紧急模式",
	ErrEmergencyNotActive:     "紧急模式未激活",
}

// 错误码HTTP状态码映射
var codeStatusMap = map[int]int{
	// 通用错误码
	ErrSuccess:         StatusOK,
	ErrUnknown:         StatusInternalServerError,
	ErrBind:            StatusBadRequest,
	ErrValidation:      StatusBadRequest,
	ErrTokenInvalid:    StatusUnauthorized,
	ErrTooManyRequests: StatusTooManyRequests,
	ErrAccessDenied:    StatusForbidden,

	// 用户相关错误码
	ErrUserNotFound:          StatusNotFound,
	ErrUserDisabled:          StatusForbidden,
	ErrUserPasswordIncorrect: StatusUnauthorized,

	// 数据库相关错误码
	ErrDatabase:       StatusInternalServerError,
	ErrRecordNotFound: StatusNotFound,

	// 出入登记相关错误码
	ErrSiteNotFound:    StatusNotFound,
	ErrSiteInactive:    StatusConflict,
	ErrEntryNotFound:   StatusNotFound,
	ErrAlreadyExited:   StatusConflict,
	ErrEmergencyActive: StatusConflict,

	// 告警相关错误码
	ErrAlertNotFound: StatusNotFound,

	// 紧急模式相关错误码
	ErrEmergencyNotFound:      StatusNotFound,
	ErrEmergencyAlreadyActive: StatusConflict,
	ErrEmergencyNotActive:     StatusConflict,
}

// GetMessage 获取错误码对应的消息
func GetMessage(code int) string {
	if msg, ok := codeMessageMap[code]; ok {
		return msg
	}
	return "未知错误"
}

// GetStatus 获取错误码对应的HTTP状态码
func GetStatus(code int) int {
	if status, ok := codeStatusMap[code]; ok {
		return status
	}
	return StatusInternalServerError
}
