package common

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(?i)(password|passwd)=([^\s&]+)`)

// MaskSecret hides all but the first character of a credential so logs can
// still hint at which credential was in play without leaking it.
func MaskSecret(s string) string {
	if len(s) <= 1 {
		return "***"
	}
	return s[:1] + strings.Repeat("*", 3)
}

// MaskDSN masks password fields inside a key=value style connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, "${1}=***")
}
