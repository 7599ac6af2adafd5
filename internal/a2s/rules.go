package a2s

import (
	"fmt"

	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/wire"
)

const typeRules = 0x45

// ParseRules decodes an A2S_RULES reply (header ‖ 0x45 ‖ count:i16 ‖
// N×(key-cstr, value-cstr)) into a key/value map; the order of the rules
// in the reply is not kept.
func ParseRules(buf []byte) (map[string]string, error) {
	if len(buf) < 7 {
		return nil, &verr.FormatError{Context: "A2S_RULES reply", Input: fmt.Sprintf("%d bytes", len(buf))}
	}
	if buf[4] != typeRules {
		return nil, &verr.FormatError{Context: "A2S_RULES type byte", Input: fmt.Sprintf("%#x", buf[4])}
	}

	count, err := wire.Int16LE(buf, 5)
	if err != nil {
		return nil, fieldErr("rule count", err)
	}

	off := 7
	rules := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		key, err := wire.ReadCString(buf, &off)
		if err != nil {
			return nil, fieldErr("rule key", err)
		}
		val, err := wire.ReadCString(buf, &off)
		if err != nil {
			return nil, fieldErr("rule value", err)
		}
		rules[key] = val
	}

	return rules, nil
}
