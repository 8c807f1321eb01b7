package bot

import (
	"context"
	"testing"

	"ontime/internal/reminder"
	logx "ontime/pkg/logx"
)

func TestChannelsSetReplyNamesAssetThenChannel(t *testing.T) {
	t.Parallel()
	d := Deps{Channels: reminder.NewChannels(nil, logx.Nop())}

	reply, err := d.channels(context.Background(), &Request{Args: []string{"set", "adhan_makkah", "ch_makkah"}})
	if err != nil {
		t.Fatalf("channels set: %v", err)
	}
	if want := `asset "adhan_makkah" bound to channel "ch_makkah"`; reply != want {
		t.Fatalf("reply = %q, want %q", reply, want)
	}

	reply, err = d.channels(context.Background(), &Request{Args: []string{"del", "adhan_makkah"}})
	if err != nil {
		t.Fatalf("channels del: %v", err)
	}
	if want := `asset "adhan_makkah" unbound`; reply != want {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}
