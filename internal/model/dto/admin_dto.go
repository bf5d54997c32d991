package dto

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Token string `json:"token"`
}

// GrantAccessRequest 手动补偿无限访问
type GrantAccessRequest struct {
	Duration int    `json:"duration" binding:"required,gt=0"`
	Note     string `json:"note,omitempty" binding:"omitempty,max=255"`
}

// UserAccessDetail 管理端用户权限详情
type UserAccessDetail struct {
	UserID                int64       `json:"user_id"`
	FreeAttemptsRemaining int         `json:"free_attempts_remaining"`
	WindowStart           string      `json:"window_start,omitempty"`
	PaidUntil             string      `json:"paid_until,omitempty"`
	TotalAttempts         int64       `json:"total_attempts"`
	LastAttemptAt         string      `json:"last_attempt_at,omitempty"`
	Access                *AccessInfo `json:"access"`
}
