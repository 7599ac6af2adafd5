// Package status parses the textual reply to the RCON "status" command
// (spec.md §4.3) into a structured StatusInfo, using one of two regex
// dialects depending on engine kind.
package status

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hlstat/valveq/pkg/verr"
)

// UserInfo is one connected, non-HLTV user line from a status reply.
type UserInfo struct {
	Name          string
	UserID        string
	AuthID        string
	Frags         int
	TimeConnected string
	Ping          int
	Loss          int
	Address       string
}

// HltvInfo is the SourceTV/HLTV variant of a status user line: AuthID is
// always the literal "HLTV"; frag/ping/loss are replaced by spectator
// slot accounting and relay delay.
type HltvInfo struct {
	Name          string
	UserID        string
	AuthID        string // always "HLTV"
	TimeConnected string
	Spectators    int
	MaxSpectators int
	Delay         int
	Address       string
}

// StatusInfo is the parsed result of a "status" command reply.
type StatusInfo struct {
	Hostname string
	Version  string
	Address  string
	Map      string

	ActivePlayers int
	MaxPlayers    int

	// ReportedUserCount is GoldSrc's trailing "<N> users" tally. It is -1
	// when the engine's reply doesn't report one (Source). See
	// DESIGN.md Open Question 1: this is never coalesced with
	// ActivePlayers, since the spec leaves their relationship undefined
	// when they disagree.
	ReportedUserCount int

	Users []interface{} // UserInfo or *HltvInfo, in reply order

	Raw string
}

var goldSrcHeader = regexp.MustCompile(
	`(?s)hostname:\s*(?P<hostname>.+?)\r?\n` +
		`version\s*:\s*(?P<version>.+?)\r?\n` +
		`tcp/ip  :  (?P<address>.+?)\r?\n` +
		`map     :  (?P<map>.+?)\r?\n` +
		`players : (?P<cur>\d+) \((?P<max>\d+) max\)`,
)

var goldSrcTrailer = regexp.MustCompile(`(\d+)\s+users`)

var sourceHeader = regexp.MustCompile(
	`(?s)hostname:\s*(?P<hostname>.+?)\r?\n` +
		`version\s*:\s*(?P<version>.+?)\r?\n` +
		`udp/ip  :  (?P<address>.+?)\r?\n` +
		`map\s*:\s*(?P<map>.+?)\r?\n` +
		`players\s*:\s*(?P<cur>\d+)\s*\((?P<max>\d+)\s*max\)`,
)

var normalUserLine = regexp.MustCompile(
	`^#\s*(?P<userid>\d+)\s+"(?P<name>.*)"\s+(?P<authid>\S+)\s+(?P<frags>-?\d+)\s+` +
		`(?P<time>[\d:]+)\s+(?P<ping>\d+)\s+(?P<loss>\d+)\s+(?P<address>\S+)\s*$`,
)

var hltvUserLine = regexp.MustCompile(
	`^#\s*(?P<userid>\d+)\s+"(?P<name>.*)"\s+HLTV\s+active\s+` +
		`(?P<time>[\d:]+)\s+hltv:(?P<cur>\d+)/(?P<max>\d+)\s+delay:(?P<delay>\d+)\s+(?P<address>\S+)\s*$`,
)

// ParseGoldSrc parses a GoldSrc-dialect "status" reply.
func ParseGoldSrc(raw string) (*StatusInfo, error) {
	return parse(raw, goldSrcHeader, true)
}

// ParseSource parses a Source-dialect "status" reply.
func ParseSource(raw string) (*StatusInfo, error) {
	return parse(raw, sourceHeader, false)
}

func parse(raw string, header *regexp.Regexp, hasUserCount bool) (*StatusInfo, error) {
	m := header.FindStringSubmatch(raw)
	if m == nil {
		return nil, &verr.FormatError{Context: "status reply header", Input: raw}
	}

	info := &StatusInfo{Raw: raw, ReportedUserCount: -1}
	for i, name := range header.SubexpNames() {
		switch name {
		case "hostname":
			info.Hostname = strings.TrimSpace(m[i])
		case "version":
			info.Version = strings.TrimSpace(m[i])
		case "address":
			info.Address = strings.TrimSpace(m[i])
		case "map":
			info.Map = strings.TrimSpace(m[i])
		case "cur":
			info.ActivePlayers, _ = strconv.Atoi(m[i])
		case "max":
			info.MaxPlayers, _ = strconv.Atoi(m[i])
		}
	}

	if hasUserCount {
		if tm := goldSrcTrailer.FindStringSubmatch(raw); tm != nil {
			info.ReportedUserCount, _ = strconv.Atoi(tm[1])
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if u, ok := parseNormalUser(line); ok {
			info.Users = append(info.Users, u)
			continue
		}
		if h, ok := parseHltvUser(line); ok {
			info.Users = append(info.Users, h)
			continue
		}
		// Lines matching neither user grammar are silently dropped
		// (spec.md §4.3).
	}

	return info, nil
}

func parseNormalUser(line string) (UserInfo, bool) {
	m := normalUserLine.FindStringSubmatch(line)
	if m == nil {
		return UserInfo{}, false
	}
	u := UserInfo{}
	for i, name := range normalUserLine.SubexpNames() {
		switch name {
		case "userid":
			u.UserID = m[i]
		case "name":
			u.Name = m[i]
		case "authid":
			u.AuthID = m[i]
		case "frags":
			u.Frags, _ = strconv.Atoi(m[i])
		case "time":
			u.TimeConnected = m[i]
		case "ping":
			u.Ping, _ = strconv.Atoi(m[i])
		case "loss":
			u.Loss, _ = strconv.Atoi(m[i])
		case "address":
			u.Address = m[i]
		}
	}
	return u, true
}

func parseHltvUser(line string) (*HltvInfo, bool) {
	m := hltvUserLine.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	h := &HltvInfo{AuthID: "HLTV"}
	for i, name := range hltvUserLine.SubexpNames() {
		switch name {
		case "userid":
			h.UserID = m[i]
		case "name":
			h.Name = m[i]
		case "time":
			h.TimeConnected = m[i]
		case "cur":
			h.Spectators, _ = strconv.Atoi(m[i])
		case "max":
			h.MaxSpectators, _ = strconv.Atoi(m[i])
		case "delay":
			h.Delay, _ = strconv.Atoi(m[i])
		case "address":
			h.Address = m[i]
		}
	}
	return h, true
}
