package server

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
		{"/v1/build/", "/v1/build"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	valid := []string{"a", "A1._-", "php.v8-cli_2"}
	invalid := []string{"", "..", "a..b", "a/b", `a\b`, "hello*", "unicode한글", "sp ace"}
	for _, s := range valid {
		if !isSafeName(s) {
			t.Fatalf("expected valid name %q", s)
		}
	}
	for _, s := range invalid {
		if isSafeName(s) {
			t.Fatalf("expected invalid name %q", s)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	if !isSafeAbsPath("") {
		t.Fatalf("empty should be allowed")
	}
	abs := filepath.Join(os.TempDir(), "x")
	if !isSafeAbsPath(abs) {
		t.Fatalf("abs clean path should be allowed: %s", abs)
	}
	if isSafeAbsPath("tmp/x") {
		t.Fatalf("relative path should be rejected")
	}
	sep := string(filepath.Separator)
	bad := filepath.Dir(abs) + sep + ".." + sep + "etc"
	if isSafeAbsPath(bad) {
		t.Fatalf("path with traversal should be rejected: %s", bad)
	}
}

func TestIsEnvKey(t *testing.T) {
	if !isEnvKey("PATH") || isEnvKey("") || isEnvKey("A=B") || isEnvKey("A\x00") {
		t.Fatalf("unexpected env key classification")
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}
