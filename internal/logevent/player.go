package logevent

import (
	"fmt"
	"regexp"
	"strconv"
)

// Player is the quadruple identity embedded in log lines: a canonical
// textual form "nick<uid><authid><team>". Parsing failures produce
// Empty rather than panicking or erroring: some events tolerate
// unparsable players.
type Player struct {
	Nick   string
	UID    int
	AuthID string
	Team   string
}

// Empty is the sentinel Player produced when the textual grammar fails to
// match.
var Empty = Player{UID: -1}

var playerGrammar = regexp.MustCompile(`^(.*)<(-?\d+)><([^<>]*)><([^<>]*)>$`)

// ParsePlayer parses raw (without its surrounding quotes) into a Player,
// returning Empty if raw does not match the grammar.
func ParsePlayer(raw string) Player {
	m := playerGrammar.FindStringSubmatch(raw)
	if m == nil {
		return Empty
	}
	uid, err := strconv.Atoi(m[2])
	if err != nil {
		return Empty
	}
	return Player{Nick: m[1], UID: uid, AuthID: m[3], Team: m[4]}
}

// String renders p in its canonical textual form.
func (p Player) String() string {
	return fmt.Sprintf("%s<%d><%s><%s>", p.Nick, p.UID, p.AuthID, p.Team)
}
