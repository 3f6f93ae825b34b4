package middleware

import (
	"path"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// PathMatcher 路径匹配器，创建后只读
type PathMatcher struct {
	paths    []string
	exact    map[string]struct{} // "/health"
	prefixes []string            // "/public/**" 去掉 "/**" 后的前缀
	patterns []string            // "/api/*/users"
}

// NewPathMatcher 创建路径匹配器
// 支持三种匹配模式：
//   - 精确匹配："/client.js" 只匹配 "/client.js"
//   - 前缀匹配："/public/**" 匹配 "/public" 及其所有子路径
//   - Glob 模式："/plugins/*/static" 使用 path.Match 进行模式匹配
func NewPathMatcher(paths []string) *PathMatcher {
	pm := &PathMatcher{
		paths: slices.Clone(paths),
		exact: make(map[string]struct{}, len(paths)),
	}
	for _, p := range paths {
		if prefix, ok := strings.CutSuffix(p, "/**"); ok {
			pm.prefixes = append(pm.prefixes, prefix)
		} else if strings.ContainsAny(p, "*?[") {
			pm.patterns = append(pm.patterns, p)
		} else {
			pm.exact[p] = struct{}{}
		}
	}
	return pm
}

// With 返回追加了 paths 的新匹配器
func (pm *PathMatcher) With(paths ...string) *PathMatcher {
	if pm == nil {
		return NewPathMatcher(paths)
	}
	return NewPathMatcher(append(slices.Clone(pm.paths), paths...))
}

// Paths 返回创建匹配器时的路径
func (pm *PathMatcher) Paths() []string {
	if pm == nil {
		return nil
	}
	return slices.Clone(pm.paths)
}

// Match 检查路径是否匹配
func (pm *PathMatcher) Match(urlPath string) bool {
	if pm == nil {
		return false
	}

	if _, ok := pm.exact[urlPath]; ok {
		return true
	}

	for _, prefix := range pm.prefixes {
		if urlPath == prefix {
			return true
		}
		if len(urlPath) > len(prefix) && urlPath[len(prefix)] == '/' && strings.HasPrefix(urlPath, prefix) {
			return true
		}
	}

	for _, p := range pm.patterns {
		if matched, _ := path.Match(p, urlPath); matched {
			return true
		}
	}
	return false
}

// shouldSkip 检查请求是否应跳过处理
func shouldSkip(c *gin.Context, matcher *PathMatcher, skipFunc func(*gin.Context) bool) bool {
	if skipFunc != nil && skipFunc(c) {
		return true
	}
	return matcher.Match(c.Request.URL.Path)
}
