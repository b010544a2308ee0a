package rules

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AutoIDPrefix marks ids synthesized for authored rules.
const AutoIDPrefix = "R-AUTO"

// AutoIDPattern matches ids produced by NewRuleID.
var AutoIDPattern = regexp.MustCompile(`^R-AUTO-[0-9a-f]{6}$`)

// NewRuleID returns a fresh id of the form R-AUTO-<6 hex>.
func NewRuleID() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s-%06x", AutoIDPrefix, time.Now().UnixNano()&0xffffff)
	}
	return AutoIDPrefix + "-" + hex.EncodeToString(b)
}

// StripFences removes a surrounding markdown code fence from generated text.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string (yaml, yml, ...) up to the first newline.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], ":") {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
