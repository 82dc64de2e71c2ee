//go:build !windows

package credentials

var platformStore store
