package logevent

import (
	"errors"
	"testing"

	"github.com/hlstat/valveq/pkg/verr"
)

func TestPlayerRoundTrip(t *testing.T) {
	raw := "Joe<15><STEAM_0:1:23456><Blue>"
	p := ParsePlayer(raw)
	want := Player{Nick: "Joe", UID: 15, AuthID: "STEAM_0:1:23456", Team: "Blue"}
	if p != want {
		t.Fatalf("ParsePlayer(%q) = %+v, want %+v", raw, p, want)
	}
	if p.String() != raw {
		t.Fatalf("String() = %q, want %q", p.String(), raw)
	}
}

func TestParsePlayerUnparsableIsEmpty(t *testing.T) {
	if p := ParsePlayer("not a player"); p != Empty {
		t.Fatalf("got %+v, want Empty", p)
	}
}

func TestParseDropsNonMatchingLine(t *testing.T) {
	ev, err := Parse("this is not a log line")
	if ev != nil || err != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", ev, err)
	}
}

func TestParseDropsInvalidDate(t *testing.T) {
	ev, err := Parse(`L 02/30/2010 - 01:01:01: Log file started`)
	if ev != nil || err != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", ev, err)
	}
}

func TestParseDropsInvalidMonth(t *testing.T) {
	ev, err := Parse(`L 13/01/2010 - 01:01:01: Log file started`)
	if ev != nil || err != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", ev, err)
	}
}

func TestParseDropsComment(t *testing.T) {
	ev, err := Parse(`L 01/01/2010 - 01:01:01: // a comment`)
	if ev != nil || err != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", ev, err)
	}
}

func TestParseKillEvent(t *testing.T) {
	line := `L 01/01/2010 - 01:01:01: "A<15><STEAM_0:1:2><T1>" killed "B<4><STEAM_0:0:3><T2>" with "weapon"`
	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pop, ok := ev.(PlayerOnPlayer)
	if !ok {
		t.Fatalf("got %T, want PlayerOnPlayer", ev)
	}
	if pop.Code != "057" || pop.Actor.Nick != "A" || pop.Target.Nick != "B" || pop.Noun != "weapon" {
		t.Fatalf("unexpected event: %+v", pop)
	}
	if len(pop.Properties) != 0 {
		t.Fatalf("expected no properties, got %v", pop.Properties)
	}
}

func TestParseTeamScore(t *testing.T) {
	line := `L 01/01/2010 - 01:01:01: Team "Yellow" scored "73" with "5" players ` +
		`(kills "182") (kills_unaccounted "4") (deaths "217") (allies "<Red><Green>")`
	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts, ok := ev.(TeamScore)
	if !ok {
		t.Fatalf("got %T, want TeamScore", ev)
	}
	if ts.Code != "065" || ts.Team != "Yellow" || ts.Score != 73 || ts.NumPlayers != 5 {
		t.Fatalf("unexpected event: %+v", ts)
	}
	want := map[string]string{
		"kills":             "182",
		"kills_unaccounted": "4",
		"deaths":            "217",
		"allies":            "<Red><Green>",
	}
	for k, v := range want {
		got, ok := GetProperty(ts.Properties, k)
		if !ok || got != v {
			t.Fatalf("property %q = %q, %v; want %q", k, got, ok, v)
		}
	}
}

func TestParseCvarEvent(t *testing.T) {
	line := `L 01/01/2010 - 01:01:01: Server cvar "mp_friendlyfire" = "0"`
	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cv, ok := ev.(CvarEvent)
	if !ok {
		t.Fatalf("got %T, want CvarEvent", ev)
	}
	if cv.Code != "001b" || cv.Key != "mp_friendlyfire" || cv.Value != "0" {
		t.Fatalf("unexpected event: %+v", cv)
	}
}

func TestParseInfoEvent(t *testing.T) {
	line := `L 01/01/2010 - 01:01:01: Log file started`
	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, ok := ev.(InfoEvent)
	if !ok || info.Code != "002a" {
		t.Fatalf("unexpected event: %+v (ok=%v)", ev, ok)
	}
}

func TestParsePlayerEvent(t *testing.T) {
	line := `L 01/01/2010 - 01:01:01: "A<15><STEAM_0:1:2><T1>" entered the game`
	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pe, ok := ev.(PlayerEvent)
	if !ok || pe.Code != "051" || pe.Player.Nick != "A" {
		t.Fatalf("unexpected event: %+v (ok=%v)", ev, ok)
	}
}

func TestParseUnknownVerbCommitsToFirstMatchedShape(t *testing.T) {
	// Matches the priority-8 shape ("<p>" <text>) but the text is not one
	// of the three recognized phrases; the parser must not fall through
	// to a later priority.
	line := `L 01/01/2010 - 01:01:01: "A<15><STEAM_0:1:2><T1>" did something unrecognized`
	ev, err := Parse(line)
	if ev != nil {
		t.Fatalf("expected nil event, got %v", ev)
	}
	if !errors.Is(err, verr.ErrUnknownEvent) {
		t.Fatalf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestRconEventGood(t *testing.T) {
	line := `L 01/01/2010 - 01:01:01: Rcon: "rcon 123456 "hunter2" status" from "1.2.3.4:27015"`
	ev, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc, ok := ev.(RconEvent)
	if !ok {
		t.Fatalf("got %T, want RconEvent", ev)
	}
	if rc.Code != "004a" || !rc.IsGood || rc.Command != "status" || rc.Challenge != "123456" {
		t.Fatalf("unexpected event: %+v", rc)
	}
	if rc.Sender == nil || rc.Sender.Port != 27015 {
		t.Fatalf("unexpected sender: %+v", rc.Sender)
	}
}

func TestSplitPropsDuplicateKeyLastWriterWins(t *testing.T) {
	core, props := splitProps(`foo (dmg "10") (DMG "20")`)
	if core != "foo" {
		t.Fatalf("core = %q", core)
	}
	v, ok := GetProperty(props, "dmg")
	if !ok || v != "20" {
		t.Fatalf("dmg = %q, %v; want 20", v, ok)
	}
	if len(props) != 1 {
		t.Fatalf("expected a single deduplicated key, got %v", props)
	}
}

func TestSplitPropsFlagForm(t *testing.T) {
	_, props := splitProps(`foo (muted)`)
	v, ok := GetProperty(props, "muted")
	if !ok || v != "true" {
		t.Fatalf("muted = %q, %v; want true", v, ok)
	}
}
