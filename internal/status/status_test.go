package status

import "testing"

const goldSrcReply = "hostname: My GoldSrc Server\n" +
	"version : 1.1.2.2/Stdio\n" +
	"tcp/ip  :  1.2.3.4:27015\n" +
	"map     :  de_dust2\n" +
	"players : 2 (16 max)\n\n" +
	"# userid name uniqueid frag time ping loss adr\n" +
	"# 2 \"PlayerOne\" STEAM_0:1:12345 10 01:23:45 50 0 1.2.3.4:27005\n" +
	"# 3 \"Relay\" HLTV active 00:05:00 hltv:2/10 delay:30 1.2.3.5:27020\n" +
	"2 users\n"

const sourceReply = "hostname: My Source Server\n" +
	"version : 1.38.2.0\n" +
	"udp/ip  :  1.2.3.4:27015\n" +
	"map: de_dust2\n" +
	"players: 1 (32 max)\n\n" +
	"# userid name uniqueid frag time ping loss adr\n" +
	"# 7 \"Alice\" STEAM_1:0:777 3 00:10:00 20 0 5.6.7.8:27005\n"

func TestParseGoldSrc(t *testing.T) {
	info, err := ParseGoldSrc(goldSrcReply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Hostname != "My GoldSrc Server" {
		t.Fatalf("Hostname = %q", info.Hostname)
	}
	if info.Map != "de_dust2" || info.ActivePlayers != 2 || info.MaxPlayers != 16 {
		t.Fatalf("unexpected header fields: %+v", info)
	}
	if info.ReportedUserCount != 2 {
		t.Fatalf("ReportedUserCount = %d, want 2", info.ReportedUserCount)
	}
	if len(info.Users) != 2 {
		t.Fatalf("len(Users) = %d, want 2", len(info.Users))
	}

	u, ok := info.Users[0].(UserInfo)
	if !ok || u.Name != "PlayerOne" || u.AuthID != "STEAM_0:1:12345" || u.Frags != 10 {
		t.Fatalf("unexpected user[0]: %+v (ok=%v)", info.Users[0], ok)
	}

	h, ok := info.Users[1].(*HltvInfo)
	if !ok || h.AuthID != "HLTV" || h.Spectators != 2 || h.MaxSpectators != 10 || h.Delay != 30 {
		t.Fatalf("unexpected user[1]: %+v (ok=%v)", info.Users[1], ok)
	}
}

func TestParseSource(t *testing.T) {
	info, err := ParseSource(sourceReply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ActivePlayers != 1 || info.MaxPlayers != 32 {
		t.Fatalf("unexpected header fields: %+v", info)
	}
	if info.ReportedUserCount != -1 {
		t.Fatalf("ReportedUserCount = %d, want -1 (Source reply has none)", info.ReportedUserCount)
	}
	if len(info.Users) != 1 {
		t.Fatalf("len(Users) = %d, want 1", len(info.Users))
	}
	u, ok := info.Users[0].(UserInfo)
	if !ok || u.Name != "Alice" {
		t.Fatalf("unexpected user[0]: %+v (ok=%v)", info.Users[0], ok)
	}
}

func TestParseGoldSrcRejectsSourceReply(t *testing.T) {
	if _, err := ParseGoldSrc(sourceReply); err == nil {
		t.Fatal("expected error parsing a Source reply as GoldSrc")
	}
}

func TestParseDropsUnrecognizedLines(t *testing.T) {
	reply := goldSrcReply + "this line matches neither grammar\n"
	info, err := ParseGoldSrc(reply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Users) != 2 {
		t.Fatalf("expected unrecognized trailing line to be dropped, got %d users", len(info.Users))
	}
}
