package redis

import "testing"

func TestKeys(t *testing.T) {
	if got := ChannelsKey("tank"); got != "rpilight:tank:channels" {
		t.Errorf("ChannelsKey() = %q", got)
	}
	if got := StatusKey("tank"); got != "rpilight:tank:status" {
		t.Errorf("StatusKey() = %q", got)
	}
}
