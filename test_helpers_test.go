package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// moduleRoot 向上查找 go.mod 所在目录，失败时为空。
var moduleRoot = func() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		if filepath.Dir(dir) == dir {
			return ""
		}
	}
}()

// configFixture 返回 internal/config/testdata 下的配置样例路径。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	if moduleRoot == "" {
		t.Fatal("无法定位模块根目录")
	}
	return filepath.Join(moduleRoot, "internal", "config", "testdata", name)
}
