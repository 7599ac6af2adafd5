package logevent

import (
	"regexp"
	"strings"
)

var trailingClauses = regexp.MustCompile(`(?:\s\(\S+(?: "[^"]*")?\))+$`)
var oneClause = regexp.MustCompile(`\((\S+)(?: "([^"]*)")?\)`)

// splitProps peels the trailing run of "(key "value")" clauses off
// payload, applying them left to right so a later duplicate key
// overwrites an earlier one (keeping the later occurrence's original
// casing). A clause with no value yields "true". It returns the
// remaining core text and the accumulated property map.
func splitProps(payload string) (string, map[string]string) {
	props := map[string]string{}

	loc := trailingClauses.FindStringIndex(payload)
	if loc == nil {
		return payload, props
	}
	core := payload[:loc[0]]
	suffix := payload[loc[0]:]

	for _, m := range oneClause.FindAllStringSubmatchIndex(suffix, -1) {
		key := suffix[m[2]:m[3]]
		value := "true"
		if m[4] != -1 {
			value = suffix[m[4]:m[5]]
		}
		setProperty(props, key, value)
	}
	return core, props
}

// setProperty inserts key/value into props, first removing any existing
// key that differs only in case so lookups remain case-insensitive while
// the stored key keeps its most recent casing.
func setProperty(props map[string]string, key, value string) {
	for k := range props {
		if strings.EqualFold(k, key) {
			delete(props, k)
			break
		}
	}
	props[key] = value
}

// GetProperty looks up key in props case-insensitively.
func GetProperty(props map[string]string, key string) (string, bool) {
	for k, v := range props {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
