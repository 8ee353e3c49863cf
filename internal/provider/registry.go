package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory 根据模型金鑰的 JSON 配置构建 Provider
type Factory func(config json.RawMessage) (LLMProvider, error)

// Registry LLM 供应商工厂注册表
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register 注册供应商工厂，名称不区分大小写
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalizeName(name)] = factory
}

// Build 按供应商名称和配置构建 Provider。
// 未注册的名称返回 ErrUnsupportedProvider，空配置返回 ErrInvalidConfig。
func (r *Registry) Build(name string, config json.RawMessage) (LLMProvider, error) {
	r.mu.RLock()
	factory, ok := r.factories[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	if isEmptyConfig(config) {
		return nil, fmt.Errorf("%w: config is empty", ErrInvalidConfig)
	}
	return factory(config)
}

// Names 列出所有已注册供应商
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isEmptyConfig(config json.RawMessage) bool {
	s := strings.TrimSpace(string(config))
	return s == "" || s == "null" || s == "{}"
}

// DecodeConfig 解析配置到目标结构体，失败时包装为 ErrInvalidConfig
func DecodeConfig(config json.RawMessage, target any) error {
	if err := json.Unmarshal(config, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
