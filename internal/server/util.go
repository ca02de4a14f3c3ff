package server

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// sanitizeBase normalizes a mount path to "" or "/x" without a trailing slash.
func sanitizeBase(bp string) string {
	bp = strings.Trim(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	return "/" + bp
}

// isSafeName accepts names usable as log file stems: [A-Za-z0-9._-], no "..".
func isSafeName(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// isSafeAbsPath accepts "" or an absolute path that filepath.Clean leaves
// unchanged apart from trailing separators.
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	trimmed := strings.TrimRight(p, string(filepath.Separator))
	if trimmed == "" {
		trimmed = p
	}
	clean := filepath.Clean(p)
	return clean == p || clean == trimmed
}

// isEnvKey rejects keys a process environment cannot carry.
func isEnvKey(k string) bool {
	return k != "" && !strings.ContainsAny(k, "=\x00")
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
