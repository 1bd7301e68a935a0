package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/weiwangfds/docfiler/internal/errors"
)

// message 对话消息，Content 为字符串或内容分片数组
type message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// chatRequest 对话补全请求体
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

// chatResponse 对话补全响应体
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// httpChat 基于HTTP JSON API的对话补全客户端
// Mistral与OpenAI的chat completions接口共享同一请求/响应形状
type httpChat struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// newHTTPChat 创建对话补全客户端
func newHTTPChat(endpoint, apiKey, model string, timeoutSecs int) *httpChat {
	if timeoutSecs <= 0 {
		timeoutSecs = 120
	}
	return &httpChat{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: time.Duration(timeoutSecs) * time.Second},
	}
}

// complete 发送一轮对话并返回助手的文本回复
func (c *httpChat) complete(ctx context.Context, messages []message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", apperrors.WrapByCode(apperrors.ErrClassifyUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.WrapByCode(apperrors.ErrClassifyUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.WrapByCode(apperrors.ErrClassifyUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.WrapByCode(apperrors.ErrClassifyUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewByCode(apperrors.ErrClassifyUnavailable).
			WithDetails(fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperrors.WrapByCode(apperrors.ErrClassifyBadResponse, err)
	}
	if parsed.Error != nil {
		return "", apperrors.NewByCode(apperrors.ErrClassifyUnavailable).WithDetails(parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.NewByCode(apperrors.ErrClassifyBadResponse).WithDetails("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// truncate 截断过长的错误文本
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
