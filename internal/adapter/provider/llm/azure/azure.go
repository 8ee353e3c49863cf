package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rolechat/internal/provider"
)

// Name 供应商名称
const Name = "azure"

// DefaultAPIVersion Azure OpenAI chat completions API 版本
const DefaultAPIVersion = "2023-07-01-preview"

// Config Azure OpenAI 模型金鑰配置（对应 model_apis.config）
type Config struct {
	APIKey                     string `json:"api_key"`
	Endpoint                   string `json:"endpoint"`
	DeploymentName             string `json:"deployment_name"`
	APIVersion                 string `json:"api_version,omitempty"`
	ConnectTimeoutSeconds      int    `json:"connect_timeout_seconds,omitempty"`
	TLSHandshakeTimeoutSeconds int    `json:"tls_handshake_timeout_seconds,omitempty"`
}

// Provider Azure OpenAI 部署的 chat completions
type Provider struct {
	config Config
	client *http.Client
}

// New 创建 Azure Provider
func New(config Config) (*Provider, error) {
	config.Endpoint = strings.TrimRight(strings.TrimSpace(config.Endpoint), "/")
	if config.APIKey == "" || config.Endpoint == "" || config.DeploymentName == "" {
		return nil, fmt.Errorf("%w: azure requires api_key, endpoint and deployment_name", provider.ErrInvalidConfig)
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}

	connectTimeout := time.Duration(config.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	tlsHandshakeTimeout := time.Duration(config.TLSHandshakeTimeoutSeconds) * time.Second
	if tlsHandshakeTimeout <= 0 {
		tlsHandshakeTimeout = 30 * time.Second
	}

	// 默认 Transport 的 TLS 握手超时为 10s，弱网下容易失败，改为可配置
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = tlsHandshakeTimeout

	return &Provider{
		config: config,
		client: &http.Client{Transport: transport},
	}, nil
}

// Factory 供注册表使用，从 JSON 配置构建 Provider
func Factory(raw json.RawMessage) (provider.LLMProvider, error) {
	var cfg Config
	if err := provider.DecodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return New(cfg)
}

func (p *Provider) Name() string {
	return Name
}

// -- 内部 API 请求/响应结构 --

type apiRequest struct {
	Messages         []apiMessage `json:"messages"`
	Temperature      *float64     `json:"temperature,omitempty"`
	MaxTokens        *int         `json:"max_tokens,omitempty"`
	TopP             *float64     `json:"top_p,omitempty"`
	PresencePenalty  *float64     `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64     `json:"frequency_penalty,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
	Model   string      `json:"model"`
}

type apiChoice struct {
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Complete 非流式补全，转发完整多轮消息
func (p *Provider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	body, err := json.Marshal(buildAPIRequest(req))
	if err != nil {
		return nil, provider.Wrap(Name, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, provider.Wrap(Name, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.Wrap(Name, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Wrap(Name, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, provider.Wrap(Name, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(apiResp.Choices) == 0 {
		return nil, provider.Wrap(Name, fmt.Errorf("no choices in response"))
	}

	choice := apiResp.Choices[0]
	return &provider.CompletionResponse{
		Content:      choice.Message.Content,
		Model:        apiResp.Model,
		FinishReason: choice.FinishReason,
		Usage: provider.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
	}, nil
}

func (p *Provider) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.config.Endpoint,
		url.PathEscape(p.config.DeploymentName),
		url.QueryEscape(p.config.APIVersion),
	)
}

func buildAPIRequest(req *provider.CompletionRequest) apiRequest {
	messages := make([]apiMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = apiMessage{Role: m.Role, Content: m.Content}
	}

	// temperature 为 0 也是合法取值，始终发送
	t := req.Temperature
	apiReq := apiRequest{
		Messages:    messages,
		Temperature: &t,
	}
	if req.MaxTokens > 0 {
		m := req.MaxTokens
		apiReq.MaxTokens = &m
	}
	if req.TopP > 0 {
		tp := req.TopP
		apiReq.TopP = &tp
	}
	if req.PresencePenalty != 0 {
		pp := req.PresencePenalty
		apiReq.PresencePenalty = &pp
	}
	if req.FrequencyPenalty != 0 {
		fp := req.FrequencyPenalty
		apiReq.FrequencyPenalty = &fp
	}
	return apiReq
}
