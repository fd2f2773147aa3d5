package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

func unit(name string) CustomType { return &Unit{Name: name} }

func TestPacketsKeepIdentifierOrder(t *testing.T) {
	testlog.Start(t)
	p := New(763)
	add := func(d Direction, s Stage, id int32, name string) {
		t.Helper()
		if err := p.AddPacket(d, s, id, unit(name)); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	add(ServerBound, Play, 1, "sb_play_1")
	add(ClientBound, Play, 2, "cb_play_2")
	add(ServerBound, Handshaking, 0, "handshake")
	add(ClientBound, Login, 0, "disconnect")
	add(ClientBound, Play, 0, "cb_play_0")

	var got []string
	for _, pkt := range p.Packets.All() {
		got = append(got, pkt.Name())
	}
	want := []string{"disconnect", "cb_play_0", "cb_play_2", "handshake", "sb_play_1"}
	if len(got) != len(want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got=%v want=%v", i, got, want)
		}
	}

	if err := p.AddPacket(ClientBound, Play, 2, unit("again")); !errors.Is(err, ErrDuplicateIdentifier) {
		t.Fatalf("expected ErrDuplicateIdentifier, got %v", err)
	}
}

func TestPacketsSplitAndGroup(t *testing.T) {
	testlog.Start(t)
	p := New(1)
	for id := int32(0); id < 3; id++ {
		_ = p.AddPacket(ClientBound, Status, id, unit("status"+string(rune('a'+id))))
		_ = p.AddPacket(ClientBound, Play, id, unit("play"+string(rune('a'+id))))
	}
	if i := p.Packets.Split(Identifier{Direction: ClientBound, Stage: Play}); i != 3 {
		t.Fatalf("split at play: got=%d want=3", i)
	}
	if i := p.Packets.Split(Identifier{Direction: ServerBound}); i != 6 {
		t.Fatalf("split at serverbound: got=%d want=6", i)
	}
	play := p.Packets.Group(ClientBound, Play)
	if len(play) != 3 || play[0].Name() != "playa" || play[2].ID != 2 {
		t.Fatalf("unexpected play group: %+v", play)
	}
	if g := p.Packets.Group(ServerBound, Login); len(g) != 0 {
		t.Fatalf("expected empty group, got %d", len(g))
	}
	if _, ok := p.Packets.Lookup(Identifier{Direction: ClientBound, Stage: Status, ID: 1}); !ok {
		t.Fatalf("lookup failed")
	}
}

func TestParseDirectionAndStage(t *testing.T) {
	testlog.Start(t)
	if d, err := ParseDirection("ServerBound"); err != nil || d != ServerBound {
		t.Fatalf("parse direction: %v %v", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatalf("expected error")
	}
	for _, s := range Stages {
		got, err := ParseStage(s.String())
		if err != nil || got != s {
			t.Fatalf("stage %s round trip: %v %v", s, got, err)
		}
	}
	if ServerBound.Opposite() != ClientBound || ClientBound.Opposite() != ServerBound {
		t.Fatalf("opposite mismatch")
	}
}

func TestMinSize(t *testing.T) {
	testlog.Start(t)
	p := New(1)
	_ = p.AddShared(&Struct{Name: "node", Fields: []Field{
		{Name: "value", Type: Integer{Kind: I32}},
		{Name: "next", Type: Option{Inner: Shared{Name: "node"}}},
	}})
	tests := []struct {
		t    FieldType
		want int
	}{
		{Integer{Kind: VarLong}, 1},
		{Integer{Kind: U64}, 8},
		{UUID{}, 16},
		{Array{Length: FixedLength{N: 3}, Elem: Integer{Kind: I16}}, 6},
		{Array{Length: RemainingLength{}, Elem: Bool{}}, 0},
		{Shared{Name: "node"}, 5},
		{Custom{Type: &Unit{Name: "u"}}, 0},
	}
	for _, tt := range tests {
		if got := p.MinSize(tt.t); got != tt.want {
			t.Fatalf("MinSize(%#v)=%d want=%d", tt.t, got, tt.want)
		}
	}
}
