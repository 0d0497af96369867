//go:build gidref_debug

package gid

const debugAsserts = true
