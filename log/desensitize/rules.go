package desensitize

import (
	"fmt"
	"regexp"
	"sync/atomic"
)

// Rule 脱敏规则接口
type Rule interface {
	Name() string
	Enabled() bool
	SetEnabled(enabled bool)
	// Process 对一行日志进行脱敏处理
	Process(s string) string
}

type baseRule struct {
	name    string
	enabled atomic.Bool
}

func (r *baseRule) Name() string            { return r.name }
func (r *baseRule) Enabled() bool           { return r.enabled.Load() }
func (r *baseRule) SetEnabled(enabled bool) { r.enabled.Store(enabled) }

// ContentRule 基于内容正则匹配的脱敏规则
type ContentRule struct {
	baseRule
	pattern     *regexp.Regexp
	replacement string
}

// NewContentRule 创建基于内容匹配的脱敏规则，replacement 支持 $1 形式的分组引用
func NewContentRule(name, pattern, replacement string) (*ContentRule, error) {
	if name == "" {
		return nil, fmt.Errorf("rule name cannot be empty")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	r := &ContentRule{pattern: re, replacement: replacement}
	r.name = name
	r.enabled.Store(true)
	return r, nil
}

// MustNewContentRule 创建规则，失败时 panic（用于内置规则）
func MustNewContentRule(name, pattern, replacement string) *ContentRule {
	r, err := NewContentRule(name, pattern, replacement)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *ContentRule) Process(s string) string {
	if !r.Enabled() {
		return s
	}
	return r.pattern.ReplaceAllString(s, r.replacement)
}

// FieldRule 替换 JSON 日志中指定字段的字符串值
type FieldRule struct {
	baseRule
	field       string
	json        *regexp.Regexp
	replacement string
}

// NewFieldRule 创建基于字段名匹配的脱敏规则
func NewFieldRule(name, field, replacement string) (*FieldRule, error) {
	if name == "" || field == "" {
		return nil, fmt.Errorf("rule name and field cannot be empty")
	}
	re, err := regexp.Compile(fmt.Sprintf(`"%s"\s*:\s*"[^"]*"`, regexp.QuoteMeta(field)))
	if err != nil {
		return nil, err
	}
	r := &FieldRule{field: field, json: re, replacement: replacement}
	r.name = name
	r.enabled.Store(true)
	return r, nil
}

// MustNewFieldRule 创建规则，失败时 panic（用于内置规则）
func MustNewFieldRule(name, field, replacement string) *FieldRule {
	r, err := NewFieldRule(name, field, replacement)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *FieldRule) Process(s string) string {
	if !r.Enabled() {
		return s
	}
	return r.json.ReplaceAllString(s, fmt.Sprintf(`"%s":"%s"`, r.field, r.replacement))
}
