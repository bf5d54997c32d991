package dto

// AccessRequest 查询/消耗配额请求
type AccessRequest struct {
	UserID int64 `form:"user_id" json:"user_id" binding:"required,gt=0"`
}

// AccessInfo 当前访问权限快照（返回给前端）。
// AttemptsLeft 为 nil 表示无限访问。
type AccessInfo struct {
	HasAccess    bool   `json:"has_access"`
	IsPaid       bool   `json:"is_paid"`
	AttemptsLeft *int   `json:"attempts_left"`
	PaidUntil    string `json:"paid_until,omitempty"`
	Message      string `json:"message"`
}

// AttemptResult 一次抽牌尝试的结果
type AttemptResult struct {
	Allowed      bool   `json:"allowed"`
	Unlimited    bool   `json:"unlimited"`
	AttemptsLeft *int   `json:"attempts_left"`
	Message      string `json:"message"`
}

// CreateInvoiceRequest 创建支付链接请求
type CreateInvoiceRequest struct {
	UserID   int64 `json:"user_id" binding:"required,gt=0"`
	Duration int   `json:"duration" binding:"required,gt=0"`
}

// CreateInvoiceResponse 创建支付链接响应
type CreateInvoiceResponse struct {
	InvoiceURL string `json:"invoice_url"`
}
