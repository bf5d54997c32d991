package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client Telegram Bot API 出站调用的轻量客户端。
// 入站 update 的解析用 tgbotapi 的类型，出站这里自己封装：
// tgbotapi v5 的构造函数会同步调 getMe，且不支持 createInvoiceLink
// 和 web_app 按钮，webhook 模式下用不上它的长轮询。
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithBaseURL 测试用，指向 httptest 服务器
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram api error: %s", apiResp.Description)
	}

	if result != nil {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// OutgoingMessage sendMessage 请求
type OutgoingMessage struct {
	ChatID      int64       `json:"chat_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	return c.call(ctx, "sendMessage", msg, nil)
}

// LabeledPrice 账单价格项，amount 单位为 Stars
type LabeledPrice struct {
	Label  string `json:"label"`
	Amount int    `json:"amount"`
}

// Invoice sendInvoice 请求（直接发到对话里）
type Invoice struct {
	ChatID      int64          `json:"chat_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Payload     string         `json:"payload"`
	Currency    string         `json:"currency"`
	Prices      []LabeledPrice `json:"prices"`
	PhotoURL    string         `json:"photo_url,omitempty"`
	PhotoWidth  int            `json:"photo_width,omitempty"`
	PhotoHeight int            `json:"photo_height,omitempty"`
}

func (c *Client) SendInvoice(ctx context.Context, inv Invoice) error {
	return c.call(ctx, "sendInvoice", inv, nil)
}

// InvoiceLink createInvoiceLink 请求（小程序内打开支付）
type InvoiceLink struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Payload     string         `json:"payload"`
	Currency    string         `json:"currency"`
	Prices      []LabeledPrice `json:"prices"`
}

func (c *Client) CreateInvoiceLink(ctx context.Context, link InvoiceLink) (string, error) {
	var url string
	if err := c.call(ctx, "createInvoiceLink", link, &url); err != nil {
		return "", err
	}
	return url, nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	payload := map[string]string{"callback_query_id": callbackID}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// AnswerPreCheckoutQuery 支付前确认，必须在 10 秒内应答
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	payload := map[string]interface{}{
		"pre_checkout_query_id": queryID,
		"ok":                    ok,
	}
	if errorMessage != "" {
		payload["error_message"] = errorMessage
	}
	return c.call(ctx, "answerPreCheckoutQuery", payload, nil)
}
