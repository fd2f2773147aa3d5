package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrDocument = errors.New("schema: invalid document")

// document is the TOML form of a Protocol.
//
//	version = 763
//	game_version = "1.20.1"
//	major_version = "1.20"
//
//	[[packets]]
//	direction = "clientbound"
//	stage = "play"
//	id = 0x52
//	type = { kind = "struct", name = "update_health", fields = [
//	  { name = "health", type = { kind = "f32" } },
//	] }
type document struct {
	Version      uint64      `toml:"version"`
	GameVersion  string      `toml:"game_version,omitempty"`
	MajorVersion string      `toml:"major_version,omitempty"`
	Packets      []packetDoc `toml:"packets"`
	Shared       []typeDoc   `toml:"shared,omitempty"`
}

type packetDoc struct {
	Direction string  `toml:"direction"`
	Stage     string  `toml:"stage"`
	ID        int32   `toml:"id"`
	Type      typeDoc `toml:"type"`
}

type typeDoc struct {
	Kind        string        `toml:"kind"`
	Name        string        `toml:"name"`
	Fields      []fieldDoc    `toml:"fields,omitempty"`
	Selector    *fieldTypeDoc `toml:"selector,omitempty"`
	SelectorKey string        `toml:"selector_key,omitempty"`
	Variants    []variantDoc  `toml:"variants,omitempty"`
	Slot        string        `toml:"slot,omitempty"`
	Bits        []bitDoc      `toml:"bits,omitempty"`
	Flags       []flagDoc     `toml:"flags,omitempty"`
}

type fieldDoc struct {
	Name string       `toml:"name"`
	Type fieldTypeDoc `toml:"type"`
}

type fieldTypeDoc struct {
	Kind    string        `toml:"kind"`
	Max     int           `toml:"max,omitempty"`
	Length  *lengthDoc    `toml:"length,omitempty"`
	Element *fieldTypeDoc `toml:"element,omitempty"`
	Custom  *typeDoc      `toml:"custom,omitempty"`
	Value   any           `toml:"value,omitempty"`
	Ref     string        `toml:"ref,omitempty"`
}

type lengthDoc struct {
	Kind  string `toml:"kind"`
	Count int    `toml:"count,omitempty"`
	Type  string `toml:"type,omitempty"`
	Key   string `toml:"key,omitempty"`
}

type variantDoc struct {
	Key  any     `toml:"key"`
	Type typeDoc `toml:"type"`
}

type bitDoc struct {
	Name  string `toml:"name"`
	Kind  string `toml:"kind"`
	Width uint8  `toml:"width,omitempty"`
}

type flagDoc struct {
	Name  string `toml:"name"`
	Value uint64 `toml:"value"`
}

// Load reads and decodes a schema document. The result is not validated.
func Load(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a schema document. Unknown keys are rejected.
func Parse(data []byte) (*Protocol, error) {
	var doc document
	meta, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocument, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrDocument, strings.Join(keys, ", "))
	}
	return doc.protocol()
}

// Marshal encodes p in canonical form: packets in identifier order and
// shared types sorted by name.
func Marshal(p *Protocol) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Encode(w io.Writer, p *Protocol) error {
	if p == nil {
		return ErrNilProtocol
	}
	doc, err := toDocument(p)
	if err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(doc)
}

// Save writes p to path in canonical form.
func Save(path string, p *Protocol) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func docErr(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrDocument, path, fmt.Sprintf(format, args...))
}

func (d document) protocol() (*Protocol, error) {
	p := New(d.Version)
	p.GameVersion = d.GameVersion
	p.MajorVersion = d.MajorVersion
	for i, pd := range d.Packets {
		path := fmt.Sprintf("packets[%d]", i)
		dir, err := ParseDirection(pd.Direction)
		if err != nil {
			return nil, docErr(path, "%v", err)
		}
		stage, err := ParseStage(pd.Stage)
		if err != nil {
			return nil, docErr(path, "%v", err)
		}
		t, err := pd.Type.custom(path + ".type")
		if err != nil {
			return nil, err
		}
		if err := p.AddPacket(dir, stage, pd.ID, t); err != nil {
			return nil, docErr(path, "%v", err)
		}
	}
	for i, sd := range d.Shared {
		path := fmt.Sprintf("shared[%d]", i)
		t, err := sd.custom(path)
		if err != nil {
			return nil, err
		}
		if err := p.AddShared(t); err != nil {
			return nil, docErr(path, "%v", err)
		}
	}
	return p, nil
}

func (td typeDoc) custom(path string) (CustomType, error) {
	switch td.Kind {
	case "struct":
		fields := make([]Field, 0, len(td.Fields))
		for i, fd := range td.Fields {
			ft, err := fd.Type.fieldType(fmt.Sprintf("%s.fields[%d]", path, i))
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: fd.Name, Type: ft})
		}
		return &Struct{Name: td.Name, Fields: fields}, nil
	case "enum":
		var sel Selector
		switch {
		case td.Selector != nil && td.SelectorKey != "":
			return nil, docErr(path, "enum sets both selector and selector_key")
		case td.Selector != nil:
			ft, err := td.Selector.fieldType(path + ".selector")
			if err != nil {
				return nil, err
			}
			sel = PrefixedSelector{Type: ft}
		case td.SelectorKey != "":
			sel = KeySelector{Field: td.SelectorKey}
		default:
			return nil, docErr(path, "enum needs selector or selector_key")
		}
		e := &Enum{Name: td.Name, Selector: sel, Variants: make([]Variant, 0, len(td.Variants))}
		for i, vd := range td.Variants {
			vpath := fmt.Sprintf("%s.variants[%d]", path, i)
			key, err := literalOf(vd.Key)
			if err != nil {
				return nil, docErr(vpath, "%v", err)
			}
			if _, dup := e.Variant(key); dup {
				return nil, docErr(vpath, "duplicate variant key %s", key)
			}
			vt, err := vd.Type.custom(vpath + ".type")
			if err != nil {
				return nil, err
			}
			e.Variants = append(e.Variants, Variant{Key: key, Type: vt})
		}
		return e, nil
	case "bitfield":
		slot, ok := ParseIntegerKind(td.Slot)
		if !ok {
			return nil, docErr(path, "unknown slot %q", td.Slot)
		}
		bits := make([]Bit, 0, len(td.Bits))
		for _, bd := range td.Bits {
			var kind BitKind
			switch bd.Kind {
			case "bool":
				kind = BitBool
			case "unsigned":
				kind = BitUnsigned
			case "signed":
				kind = BitSigned
			default:
				return nil, docErr(path+"."+bd.Name, "unknown bit kind %q", bd.Kind)
			}
			bits = append(bits, Bit{Name: bd.Name, Kind: kind, Width: bd.Width})
		}
		return &BitField{Name: td.Name, Slot: slot, Fields: bits}, nil
	case "bitflags":
		slot, ok := ParseIntegerKind(td.Slot)
		if !ok {
			return nil, docErr(path, "unknown slot %q", td.Slot)
		}
		flags := make([]Flag, 0, len(td.Flags))
		for _, fd := range td.Flags {
			flags = append(flags, Flag{Name: fd.Name, Value: fd.Value})
		}
		return &BitFlags{Name: td.Name, Slot: slot, Flags: flags}, nil
	case "unit":
		return &Unit{Name: td.Name}, nil
	default:
		return nil, docErr(path, "unknown custom type kind %q", td.Kind)
	}
}

func (fd *fieldTypeDoc) fieldType(path string) (FieldType, error) {
	if k, ok := ParseIntegerKind(fd.Kind); ok {
		return Integer{Kind: k}, nil
	}
	switch fd.Kind {
	case "f32":
		return Float{Kind: F32}, nil
	case "f64":
		return Float{Kind: F64}, nil
	case "bool":
		return Bool{}, nil
	case "uuid":
		return UUID{}, nil
	case "string":
		return String{Max: fd.Max}, nil
	case "nbt":
		return NBT{}, nil
	case "array":
		if fd.Length == nil {
			return nil, docErr(path, "array needs a length")
		}
		length, err := fd.Length.arrayLength(path + ".length")
		if err != nil {
			return nil, err
		}
		elem, err := fd.element(path)
		if err != nil {
			return nil, err
		}
		return Array{Length: length, Elem: elem}, nil
	case "option":
		inner, err := fd.element(path)
		if err != nil {
			return nil, err
		}
		return Option{Inner: inner}, nil
	case "key":
		inner, err := fd.element(path)
		if err != nil {
			return nil, err
		}
		return Key{Inner: inner}, nil
	case "custom":
		if fd.Custom == nil {
			return nil, docErr(path, "custom field needs a custom table")
		}
		t, err := fd.Custom.custom(path + ".custom")
		if err != nil {
			return nil, err
		}
		return Custom{Type: t}, nil
	case "constant":
		v, err := literalOf(fd.Value)
		if err != nil {
			return nil, docErr(path, "%v", err)
		}
		return Constant{Value: v}, nil
	case "shared":
		if fd.Ref == "" {
			return nil, docErr(path, "shared field needs ref")
		}
		return Shared{Name: fd.Ref}, nil
	default:
		return nil, docErr(path, "unknown field kind %q", fd.Kind)
	}
}

func (fd *fieldTypeDoc) element(path string) (FieldType, error) {
	if fd.Element == nil {
		return nil, docErr(path, "%s needs an element type", fd.Kind)
	}
	return fd.Element.fieldType(path + ".element")
}

func (ld *lengthDoc) arrayLength(path string) (ArrayLength, error) {
	switch ld.Kind {
	case "remaining":
		return RemainingLength{}, nil
	case "fixed":
		return FixedLength{N: ld.Count}, nil
	case "prefixed":
		k, ok := ParseIntegerKind(ld.Type)
		if !ok {
			return nil, docErr(path, "unknown prefix type %q", ld.Type)
		}
		return PrefixedLength{Kind: k}, nil
	case "key":
		if ld.Key == "" {
			return nil, docErr(path, "key length needs key")
		}
		return KeyLength{Field: ld.Key}, nil
	default:
		return nil, docErr(path, "unknown length kind %q", ld.Kind)
	}
}

func literalOf(v any) (Literal, error) {
	switch v := v.(type) {
	case int64:
		return IntLiteral(v), nil
	case bool:
		return BoolLiteral(v), nil
	case string:
		return StringLiteral(v), nil
	case nil:
		return Literal{}, errors.New("missing literal")
	default:
		return Literal{}, fmt.Errorf("literal must be an integer, bool or string, got %T", v)
	}
}

func toDocument(p *Protocol) (document, error) {
	doc := document{Version: p.Version, GameVersion: p.GameVersion, MajorVersion: p.MajorVersion}
	for _, pkt := range p.Packets.All() {
		td, err := customDoc(pkt.Type)
		if err != nil {
			return document{}, fmt.Errorf("%s: %w", pkt.Identifier, err)
		}
		doc.Packets = append(doc.Packets, packetDoc{
			Direction: pkt.Direction.String(),
			Stage:     pkt.Stage.String(),
			ID:        pkt.ID,
			Type:      td,
		})
	}
	for _, name := range p.SharedNames() {
		td, err := customDoc(p.Shared[name])
		if err != nil {
			return document{}, fmt.Errorf("shared %s: %w", name, err)
		}
		doc.Shared = append(doc.Shared, td)
	}
	return doc, nil
}

func customDoc(t CustomType) (typeDoc, error) {
	switch t := t.(type) {
	case *Struct:
		td := typeDoc{Kind: "struct", Name: t.Name}
		for _, f := range t.Fields {
			fd, err := fieldDocOf(f.Type)
			if err != nil {
				return typeDoc{}, err
			}
			td.Fields = append(td.Fields, fieldDoc{Name: f.Name, Type: fd})
		}
		return td, nil
	case *Enum:
		td := typeDoc{Kind: "enum", Name: t.Name}
		switch s := t.Selector.(type) {
		case PrefixedSelector:
			fd, err := fieldDocOf(s.Type)
			if err != nil {
				return typeDoc{}, err
			}
			td.Selector = &fd
		case KeySelector:
			td.SelectorKey = s.Field
		default:
			return typeDoc{}, fmt.Errorf("enum %s: missing selector", t.Name)
		}
		for _, v := range t.Variants {
			vt, err := customDoc(v.Type)
			if err != nil {
				return typeDoc{}, err
			}
			td.Variants = append(td.Variants, variantDoc{Key: v.Key.Any(), Type: vt})
		}
		return td, nil
	case *BitField:
		td := typeDoc{Kind: "bitfield", Name: t.Name, Slot: t.Slot.String()}
		for _, b := range t.Fields {
			bd := bitDoc{Name: b.Name, Kind: b.Kind.String()}
			if b.Kind != BitBool {
				bd.Width = b.Width
			}
			td.Bits = append(td.Bits, bd)
		}
		return td, nil
	case *BitFlags:
		td := typeDoc{Kind: "bitflags", Name: t.Name, Slot: t.Slot.String()}
		for _, f := range t.Flags {
			td.Flags = append(td.Flags, flagDoc{Name: f.Name, Value: f.Value})
		}
		return td, nil
	case *Unit:
		return typeDoc{Kind: "unit", Name: t.Name}, nil
	default:
		return typeDoc{}, fmt.Errorf("unsupported custom type %T", t)
	}
}

func fieldDocOf(t FieldType) (fieldTypeDoc, error) {
	switch t := t.(type) {
	case Integer:
		return fieldTypeDoc{Kind: t.Kind.String()}, nil
	case Float:
		return fieldTypeDoc{Kind: t.Kind.String()}, nil
	case Bool:
		return fieldTypeDoc{Kind: "bool"}, nil
	case UUID:
		return fieldTypeDoc{Kind: "uuid"}, nil
	case String:
		return fieldTypeDoc{Kind: "string", Max: t.Max}, nil
	case NBT:
		return fieldTypeDoc{Kind: "nbt"}, nil
	case Array:
		elem, err := fieldDocOf(t.Elem)
		if err != nil {
			return fieldTypeDoc{}, err
		}
		var ld lengthDoc
		switch l := t.Length.(type) {
		case RemainingLength:
			ld = lengthDoc{Kind: "remaining"}
		case FixedLength:
			ld = lengthDoc{Kind: "fixed", Count: l.N}
		case PrefixedLength:
			ld = lengthDoc{Kind: "prefixed", Type: l.Kind.String()}
		case KeyLength:
			ld = lengthDoc{Kind: "key", Key: l.Field}
		default:
			return fieldTypeDoc{}, errors.New("array without length")
		}
		return fieldTypeDoc{Kind: "array", Length: &ld, Element: &elem}, nil
	case Option:
		inner, err := fieldDocOf(t.Inner)
		if err != nil {
			return fieldTypeDoc{}, err
		}
		return fieldTypeDoc{Kind: "option", Element: &inner}, nil
	case Key:
		inner, err := fieldDocOf(t.Inner)
		if err != nil {
			return fieldTypeDoc{}, err
		}
		return fieldTypeDoc{Kind: "key", Element: &inner}, nil
	case Custom:
		td, err := customDoc(t.Type)
		if err != nil {
			return fieldTypeDoc{}, err
		}
		return fieldTypeDoc{Kind: "custom", Custom: &td}, nil
	case Constant:
		return fieldTypeDoc{Kind: "constant", Value: t.Value.Any()}, nil
	case Shared:
		return fieldTypeDoc{Kind: "shared", Ref: t.Name}, nil
	default:
		return fieldTypeDoc{}, fmt.Errorf("unsupported field type %T", t)
	}
}
