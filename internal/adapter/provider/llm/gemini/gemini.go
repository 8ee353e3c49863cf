package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rolechat/internal/provider"
)

// Name 供应商名称
const Name = "gemini"

const (
	DefaultModel   = "gemini-1.5-pro-latest"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Config Gemini 模型金鑰配置，只有 api_key 必填
type Config struct {
	APIKey         string `json:"api_key"`
	Model          string `json:"model,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Provider Gemini generateContent。
// 单轮调用：只发送最后一条 user 消息，不转发 system 与历史消息。
type Provider struct {
	config Config
	client *http.Client
}

// New 创建 Gemini Provider
func New(config Config) (*Provider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("%w: gemini requires api_key", provider.ErrInvalidConfig)
	}
	config.Model = strings.TrimPrefix(strings.TrimSpace(config.Model), "models/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		config: config,
		client: &http.Client{Timeout: timeout},
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

// SingleTurn 只转发最后一条 user 消息
func (p *Provider) SingleTurn() bool {
	return true
}

// Model 实际调用的模型
func (p *Provider) Model() string {
	return p.config.Model
}

type apiRequest struct {
	Contents         []apiContent         `json:"contents"`
	GenerationConfig *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text string `json:"text"`
}

type apiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type apiResponse struct {
	Candidates []struct {
		Content      apiContent `json:"content"`
		FinishReason string     `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Complete 单轮生成
func (p *Provider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	prompt := req.LastUserContent()
	if strings.TrimSpace(prompt) == "" {
		return nil, provider.Wrap(Name, fmt.Errorf("empty prompt"))
	}

	apiReq := apiRequest{
		Contents: []apiContent{{Role: "user", Parts: []apiPart{{Text: prompt}}}},
	}
	if gc := buildGenerationConfig(req); gc != nil {
		apiReq.GenerationConfig = gc
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, provider.Wrap(Name, fmt.Errorf("failed to marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.config.BaseURL, url.PathEscape(p.config.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, provider.Wrap(Name, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

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
	if len(apiResp.Candidates) == 0 {
		if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
			return nil, provider.Wrap(Name, fmt.Errorf("prompt blocked: %s", apiResp.PromptFeedback.BlockReason))
		}
		return nil, provider.Wrap(Name, fmt.Errorf("no candidates in response"))
	}

	candidate := apiResp.Candidates[0]
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}

	return &provider.CompletionResponse{
		Content:      sb.String(),
		Model:        p.config.Model,
		FinishReason: candidate.FinishReason,
		Usage: provider.Usage{
			PromptTokens:     apiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      apiResp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func buildGenerationConfig(req *provider.CompletionRequest) *apiGenerationConfig {
	gc := &apiGenerationConfig{}
	set := false
	if req.Temperature > 0 {
		t := req.Temperature
		gc.Temperature = &t
		set = true
	}
	if req.MaxTokens > 0 {
		m := req.MaxTokens
		gc.MaxOutputTokens = &m
		set = true
	}
	if req.TopP > 0 {
		tp := req.TopP
		gc.TopP = &tp
		set = true
	}
	if !set {
		return nil
	}
	return gc
}
