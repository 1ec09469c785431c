package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"trace", TRACE},
		{"DEBUG", DEBUG},
		{" info ", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"bogus", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(WARN)
	Debug("test", "hidden %d", 1)
	Info("test", "hidden %d", 2)
	Warn("test", "shown %d", 3)
	Error("", "shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected DEBUG/INFO to be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "[test WARN ] shown 3") {
		t.Errorf("Missing prefixed warning line, got:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] shown 4") {
		t.Errorf("Missing unprefixed error line, got:\n%s", out)
	}
}

func TestDebugJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(DEBUG)
	DebugJSON("test", "params", map[string]int{"port": 8988})

	if !strings.Contains(buf.String(), `"port": 8988`) {
		t.Errorf("Expected JSON body in output, got:\n%s", buf.String())
	}
}

func TestShort(t *testing.T) {
	if got := Short("0123456789abcdef"); got != "01234567" {
		t.Errorf("Short() = %q", got)
	}
	if got := Short("abc"); got != "abc" {
		t.Errorf("Short() = %q", got)
	}
}
