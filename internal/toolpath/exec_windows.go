//go:build windows

package toolpath

func EnsureExecutable(string) error { return nil }
