// Package logevent parses HL Log Standard lines (spec.md §4.5) into a
// tagged union of Event variants.
package logevent

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hlstat/valveq/pkg/verr"
)

var masterLine = regexp.MustCompile(`^L (\d{2}/\d{2}/\d{4}) - (\d{2}:\d{2}:\d{2}): (.*)$`)

// Parse decodes one received log datagram. It returns (nil, nil) for
// input that is silently dropped (no master-regex match, or a comment
// line), and (nil, err) wrapping verr.ErrUnknownEvent when the line's
// outer frame matches but no event pattern claims its payload.
func Parse(raw string) (Event, error) {
	m := masterLine.FindStringSubmatch(raw)
	if m == nil {
		return nil, nil
	}
	dateStr, timeStr, payload := m[1], m[2], m[3]

	if !validDate(dateStr) || !validTime(timeStr) {
		return nil, nil
	}
	if strings.HasPrefix(payload, "//") {
		return nil, nil
	}

	core, props := splitProps(payload)
	return classify(raw, core, props)
}

// validDate and validTime reject out-of-range components. time.Parse
// itself returns an error for an impossible date like 02/30/2010 (day out
// of range) or 13/01/2010 (month out of range); the parsed value is also
// reformatted and compared back to the input.
func validDate(s string) bool {
	t, err := time.Parse("01/02/2006", s)
	return err == nil && t.Format("01/02/2006") == s
}

func validTime(s string) bool {
	t, err := time.Parse("15:04:05", s)
	return err == nil && t.Format("15:04:05") == s
}

func unknownEvent(raw string) error {
	return fmt.Errorf("logevent: %w: %q", verr.ErrUnknownEvent, raw)
}

type matcher func(core string, h Header) (Event, bool, error)

var priorities = []matcher{
	p1Cvar,
	p2Rcon,
	p3Kick,
	p4TeamScore,
	p5PlayerScore,
	p6PlayerOnPlayer,
	p7PlayerAction,
	p8PlayerEvent,
	p9TeamEvent,
	p10ServerEvent,
	p11InfoEvent,
}

// classify tries each priority's outer shape in order and commits to the
// first one that matches, per spec.md §4.5: later patterns are never
// tried once an earlier one's shape matches, even if its verb turns out
// to be unrecognized.
func classify(raw, core string, props map[string]string) (Event, error) {
	h := Header{RawLine: raw, Properties: props}
	for _, fn := range priorities {
		ev, matched, err := fn(core, h)
		if matched {
			return ev, err
		}
	}
	return nil, unknownEvent(raw)
}

var cvarRe = regexp.MustCompile(`^Server cvar "([^"]+)" = "([^"]*)"$`)

func p1Cvar(core string, h Header) (Event, bool, error) {
	m := cvarRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	h.Code = "001b"
	return CvarEvent{Header: h, Key: m[1], Value: m[2]}, true, nil
}

var rconRe = regexp.MustCompile(`^(Bad )?Rcon: "(.*)" from "([^"]*)"$`)
var rconBodyRe = regexp.MustCompile(`^rcon (\S+) "([^"]*)" (.*)$`)

func p2Rcon(core string, h Header) (Event, bool, error) {
	m := rconRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	isGood := m[1] == ""
	if isGood {
		h.Code = "004a"
	} else {
		h.Code = "004b"
	}

	ev := RconEvent{Header: h, Command: m[2], IsGood: isGood, Sender: parseSender(m[3])}
	if bm := rconBodyRe.FindStringSubmatch(m[2]); bm != nil {
		ev.Challenge, ev.Password, ev.Command = bm[1], bm[2], bm[3]
	}
	return ev, true, nil
}

func parseSender(raw string) *net.UDPAddr {
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil
	}
	return &net.UDPAddr{IP: ip, Port: port}
}

var kickRe = regexp.MustCompile(`^Kick: "([^"]+)" was kicked by "([^"]+)"$`)

func p3Kick(core string, h Header) (Event, bool, error) {
	m := kickRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	h.Code = "052b"
	return KickEvent{Header: h, Player: m[1], Kicker: m[2]}, true, nil
}

var teamScoreRe = regexp.MustCompile(`^Team "([^"]+)" scored "(-?\d+)" with "(\d+)" players$`)

func p4TeamScore(core string, h Header) (Event, bool, error) {
	m := teamScoreRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	h.Code = "065"
	score, _ := strconv.Atoi(m[2])
	num, _ := strconv.Atoi(m[3])
	return TeamScore{Header: h, Team: m[1], Score: score, NumPlayers: num}, true, nil
}

var playerScoreRe = regexp.MustCompile(`^Player "([^"]+)" scored "(-?\d+)"$`)

func p5PlayerScore(core string, h Header) (Event, bool, error) {
	m := playerScoreRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	h.Code = "067"
	score, _ := strconv.Atoi(m[2])
	return PlayerScore{Header: h, Player: ParsePlayer(m[1]), Score: score}, true, nil
}

var playerOnPlayerRe = regexp.MustCompile(`^"([^"]+)" (\S+) "([^"]+)" (\S+) "([^"]+)"$`)

var playerOnPlayerCodes = map[string]string{
	"killed":    "057",
	"attacked":  "058",
	"triggered": "059",
	"tell":      "066",
}

// p6PlayerOnPlayer tries the second quoted token as a Player first; if it
// doesn't parse, it falls back to treating the third token as the noun
// and the fifth as the Player (spec.md §4.5 priority 6).
func p6PlayerOnPlayer(core string, h Header) (Event, bool, error) {
	m := playerOnPlayerRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	code, ok := playerOnPlayerCodes[m[2]]
	if !ok {
		return nil, true, unknownEvent(h.RawLine)
	}
	h.Code = code

	actor := ParsePlayer(m[1])
	var target Player
	var noun string
	if second := ParsePlayer(m[3]); second != Empty {
		target, noun = second, m[5]
	} else {
		noun, target = m[3], ParsePlayer(m[5])
	}
	return PlayerOnPlayer{Header: h, Verb: m[2], Actor: actor, Target: target, Noun: noun}, true, nil
}

var playerActionRe = regexp.MustCompile(`^"([^"]+)" (.+?) "([^"]+)"$`)

var playerActionCodes = map[string]string{
	"changed name to":       "050",
	"joined team":           "053",
	"changed role to":       "054",
	"committed suicide with": "055",
	"triggered":              "056",
	"left buyzone with":      "060",
	"picked up":              "063a",
	"dropped":                "063b",
	"threw":                  "068",
	"assisted killing":       "069",
}

func p7PlayerAction(core string, h Header) (Event, bool, error) {
	m := playerActionRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	code, ok := playerActionCodes[m[2]]
	if !ok {
		return nil, true, unknownEvent(h.RawLine)
	}
	h.Code = code
	return PlayerAction{Header: h, Verb: m[2], Player: ParsePlayer(m[1]), Noun: m[3]}, true, nil
}

var playerEventRe = regexp.MustCompile(`^"([^"]+)" ([^"]+)$`)

var playerEventCodes = map[string]string{
	"STEAM USERID validated": "050b",
	"entered the game":       "051",
	"disconnected":           "052",
}

func p8PlayerEvent(core string, h Header) (Event, bool, error) {
	m := playerEventRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	text := strings.TrimSpace(m[2])
	code, ok := playerEventCodes[text]
	if !ok {
		return nil, true, unknownEvent(h.RawLine)
	}
	h.Code = code
	return PlayerEvent{Header: h, Player: ParsePlayer(m[1]), Text: text}, true, nil
}

var teamEventRe = regexp.MustCompile(`^Team "([^"]+)" (.+?) "([^"]+)"$`)

var teamEventCodes = map[string]string{
	"triggered":                 "061",
	"formed alliance with team": "064",
}

func p9TeamEvent(core string, h Header) (Event, bool, error) {
	m := teamEventRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	code, ok := teamEventCodes[m[2]]
	if !ok {
		return nil, true, unknownEvent(h.RawLine)
	}
	h.Code = code
	return TeamEvent{Header: h, Verb: m[2], Team: m[1], Noun: m[3]}, true, nil
}

var serverEventRe = regexp.MustCompile(`^(.+?) "([^"]+)"$`)

var serverEventCodes = map[string]string{
	"World triggered": "062",
	"Loading map":     "003a",
	"Started map":     "003b",
	"Server name is":  "005",
	"Server say":      "006",
}

func p10ServerEvent(core string, h Header) (Event, bool, error) {
	m := serverEventRe.FindStringSubmatch(core)
	if m == nil {
		return nil, false, nil
	}
	code, ok := serverEventCodes[m[1]]
	if !ok {
		return nil, true, unknownEvent(h.RawLine)
	}
	h.Code = code
	return ServerEvent{Header: h, Verb: m[1], Noun: m[2]}, true, nil
}

var infoEventCodes = map[string]string{
	"Server cvars start": "001a",
	"Server cvars end":   "001c",
	"Log file started":   "002a",
	"Log file closed":    "002b",
}

func p11InfoEvent(core string, h Header) (Event, bool, error) {
	if strings.Contains(core, `"`) {
		return nil, false, nil
	}
	code, ok := infoEventCodes[core]
	if !ok {
		return nil, true, unknownEvent(h.RawLine)
	}
	h.Code = code
	return InfoEvent{Header: h, Verb: core}, true, nil
}
