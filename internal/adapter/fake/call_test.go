package fake

import (
	"slices"
	"testing"
)

func TestCallRecorder(t *testing.T) {
	t.Parallel()
	var r CallRecorder

	r.record("GetPeer", "wg_a")
	r.record("ListPeers")
	r.record("GetPeer", "wg_b")

	if got := r.Methods(); !slices.Equal(got, []string{"GetPeer", "ListPeers", "GetPeer"}) {
		t.Fatalf("Methods() = %v", got)
	}
	gets := r.Calls("GetPeer")
	if len(gets) != 2 || gets[1].Args[0] != "wg_b" {
		t.Fatalf("Calls(GetPeer) = %v", gets)
	}
	if len(r.Calls("SaveInvite")) != 0 {
		t.Fatal("expected no SaveInvite calls")
	}

	all := r.Calls("")
	all[0].Method = "mutated"
	if r.Calls("")[0].Method != "GetPeer" {
		t.Fatal("Calls must return a copy")
	}

	r.Reset()
	if len(r.Calls("")) != 0 {
		t.Fatalf("expected no calls after Reset, got %d", len(r.Calls("")))
	}
}
