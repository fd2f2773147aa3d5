package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

const sampleDocument = `
version = 763
game_version = "1.20.1"
major_version = "1.20"

[[packets]]
direction = "serverbound"
stage = "handshaking"
id = 0x00
type = { kind = "struct", name = "handshake", fields = [
  { name = "protocol_version", type = { kind = "varint" } },
  { name = "server_address", type = { kind = "string", max = 255 } },
  { name = "server_port", type = { kind = "u16" } },
  { name = "next_state", type = { kind = "varint" } },
] }

[[packets]]
direction = "clientbound"
stage = "play"
id = 0x10
type = { kind = "struct", name = "window_items", fields = [
  { name = "window_id", type = { kind = "u8" } },
  { name = "count", type = { kind = "key", element = { kind = "varint" } } },
  { name = "slots", type = { kind = "array", length = { kind = "key", key = "count" }, element = { kind = "shared", ref = "slot" } } },
  { name = "magic", type = { kind = "constant", value = 7 } },
] }

[[packets]]
direction = "clientbound"
stage = "play"
id = 0x11
type = { kind = "enum", name = "effect", selector = { kind = "bool" }, variants = [
  { key = false, type = { kind = "unit", name = "none" } },
  { key = true, type = { kind = "bitflags", name = "flags", slot = "u8", flags = [
    { name = "ambient", value = 1 },
    { name = "visible", value = 4 },
  ] } },
] }

[[shared]]
kind = "struct"
name = "slot"
fields = [
  { name = "present", type = { kind = "option", element = { kind = "custom", custom = { kind = "bitfield", name = "item", slot = "u16", bits = [
    { name = "id", kind = "unsigned", width = 12 },
    { name = "enchanted", kind = "bool" },
  ] } } } },
  { name = "nbt", type = { kind = "nbt" } },
]
`

func TestParseSampleDocument(t *testing.T) {
	testlog.Start(t)
	p, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Version != 763 || p.Packets.Len() != 3 || len(p.Shared) != 1 {
		t.Fatalf("unexpected protocol: version=%d packets=%d shared=%d", p.Version, p.Packets.Len(), len(p.Shared))
	}
	if p.GameVersion != "1.20.1" || p.MajorVersion != "1.20" || p.Label() != "763 (1.20.1)" {
		t.Fatalf("unexpected release labels: %q %q %q", p.GameVersion, p.MajorVersion, p.Label())
	}
	if New(5).Label() != "5" {
		t.Fatalf("unlabelled protocol should print its number")
	}
	if _, err := Validate(p); err != nil {
		t.Fatalf("validate: %v", err)
	}
	hs, ok := p.Packets.Lookup(Identifier{Direction: ServerBound, Stage: Handshaking, ID: 0})
	if !ok || hs.Name() != "handshake" {
		t.Fatalf("missing handshake packet")
	}
	fields := hs.Type.(*Struct).Fields
	if fields[1].Type != (String{Max: 255}) || fields[2].Type != (Integer{Kind: U16}) {
		t.Fatalf("unexpected handshake fields: %+v", fields)
	}
	wi, _ := p.Packets.Lookup(Identifier{Direction: ClientBound, Stage: Play, ID: 0x10})
	magic := wi.Type.(*Struct).Fields[3].Type
	if magic != (Constant{Value: IntLiteral(7)}) {
		t.Fatalf("unexpected constant: %#v", magic)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	testlog.Start(t)
	p, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	path := filepath.Join(t.TempDir(), "protocol.toml")
	if err := Save(path, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		data, _ := os.ReadFile(path)
		t.Fatalf("load canonical form: %v\n%s", err, data)
	}
	if !reflect.DeepEqual(p, again) {
		t.Fatalf("round trip mismatch:\nfirst=%#v\nsecond=%#v", p, again)
	}

	first, _ := Marshal(p)
	second, _ := Marshal(again)
	if string(first) != string(second) {
		t.Fatalf("canonical form is not stable")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	doc := `
version = 1
[[packets]]
direction = "clientbound"
stage = "status"
id = 0
colour = "blue"
type = { kind = "unit", name = "pong" }
`
	if _, err := Parse([]byte(doc)); !errors.Is(err, ErrDocument) {
		t.Fatalf("expected ErrDocument, got %v", err)
	}
}

func TestParseRejectsBadKinds(t *testing.T) {
	testlog.Start(t)
	cases := []string{
		`[[packets]]
direction = "clientbound"
stage = "status"
id = 0
type = { kind = "tuple", name = "x" }`,
		`[[packets]]
direction = "upward"
stage = "status"
id = 0
type = { kind = "unit", name = "x" }`,
		`[[packets]]
direction = "clientbound"
stage = "status"
id = 0
type = { kind = "struct", name = "x", fields = [ { name = "a", type = { kind = "array", element = { kind = "u8" } } } ] }`,
		`[[packets]]
direction = "clientbound"
stage = "status"
id = 0
type = { kind = "enum", name = "x", variants = [] }`,
		`[[packets]]
direction = "clientbound"
stage = "status"
id = 0
type = { kind = "enum", name = "x", selector = { kind = "u8" }, variants = [
  { key = 1, type = { kind = "unit", name = "a" } },
  { key = 1, type = { kind = "unit", name = "b" } },
] }`,
	}
	for i, doc := range cases {
		if _, err := Parse([]byte(doc)); !errors.Is(err, ErrDocument) {
			t.Fatalf("case %d: expected ErrDocument, got %v", i, err)
		}
	}
}
