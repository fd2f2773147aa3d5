package proxy

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/protoforge/internal/config"
	"github.com/danmuck/protoforge/internal/protocol/packet"
	"github.com/danmuck/protoforge/internal/protocol/schema"
)

var (
	ErrEncryptedSession = errors.New("proxy: session enabled encryption")
	ErrRuleField        = errors.New("proxy: rule field missing or not usable")
)

// Rule is a validated config rule bound to a packet definition.
type Rule struct {
	Ident   schema.Identifier
	Packet  string
	Action  string
	Field   string
	To      schema.Stage
	Targets map[string]schema.Stage
	Match   map[string]string
}

// Effect is what a packet asks the session to do once it has been relayed.
type Effect struct {
	Transition  bool
	Stage       schema.Stage
	Compression bool
	Threshold   int
	Encryption  bool
}

func (e Effect) Empty() bool { return !e.Transition && !e.Compression && !e.Encryption }

// Rules indexes rules by the packet they react to.
type Rules struct {
	byIdent map[schema.Identifier][]Rule
}

// CompileRules checks every rule against proto and indexes it.
func CompileRules(cfgs []config.RuleConfig, proto *packet.Protocol) (*Rules, error) {
	out := &Rules{byIdent: make(map[schema.Identifier][]Rule)}
	for i, rc := range cfgs {
		if err := config.ValidateRule(rc); err != nil {
			return nil, fmt.Errorf("rule[%d]: %w", i, err)
		}
		d, _ := schema.ParseDirection(rc.Direction)
		s, _ := schema.ParseStage(rc.Stage)
		def, ok := proto.Group(d, s).ByName(rc.Packet)
		if !ok {
			return nil, fmt.Errorf("rule[%d]: no packet %q in %s/%s", i, rc.Packet, d, s)
		}
		r := Rule{
			Ident:  def.Identifier(),
			Packet: rc.Packet,
			Action: rc.Action,
			Field:  rc.Field,
			Match:  rc.Match,
		}
		if rc.Action == config.ActionTransition {
			if rc.Field == "" {
				r.To, _ = schema.ParseStage(rc.To)
			} else {
				r.Targets = make(map[string]schema.Stage, len(rc.Targets))
				for value, raw := range rc.Targets {
					r.Targets[value], _ = schema.ParseStage(raw)
				}
			}
		}
		out.byIdent[r.Ident] = append(out.byIdent[r.Ident], r)
	}
	return out, nil
}

func (rs *Rules) Len() int {
	n := 0
	for _, list := range rs.byIdent {
		n += len(list)
	}
	return n
}

// Evaluate merges the effects of every rule matching p.
func (rs *Rules) Evaluate(p packet.Packet) (Effect, error) {
	var eff Effect
	def := p.Definition()
	if def == nil {
		return eff, nil
	}
	for _, r := range rs.byIdent[def.Identifier()] {
		fields, _ := p.Value.(packet.Struct)
		if !matches(r.Match, fields) {
			continue
		}
		switch r.Action {
		case config.ActionTransition:
			stage, ok, err := r.target(fields)
			if err != nil {
				return Effect{}, err
			}
			if ok {
				eff.Transition, eff.Stage = true, stage
			}
		case config.ActionCompression:
			n, err := r.intField(fields)
			if err != nil {
				return Effect{}, err
			}
			eff.Compression, eff.Threshold = true, int(n)
		case config.ActionEncryption:
			eff.Encryption = true
		}
	}
	return eff, nil
}

func (r Rule) target(fields packet.Struct) (schema.Stage, bool, error) {
	if r.Field == "" {
		return r.To, true, nil
	}
	v, ok := fields[r.Field]
	if !ok {
		return 0, false, fmt.Errorf("%w: %s.%s", ErrRuleField, r.Packet, r.Field)
	}
	stage, ok := r.Targets[format(v)]
	return stage, ok, nil
}

func (r Rule) intField(fields packet.Struct) (int64, error) {
	v, ok := fields[r.Field]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrRuleField, r.Packet, r.Field)
	}
	n, err := strconv.ParseInt(format(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s is %T", ErrRuleField, r.Packet, r.Field, v)
	}
	return n, nil
}

// matches reports whether every wanted field has the given value. A flags
// field matches when the named flag is set.
func matches(want map[string]string, fields packet.Struct) bool {
	for name, value := range want {
		got, ok := fields[name]
		if !ok {
			return false
		}
		if flags, isFlags := got.(packet.Flags); isFlags {
			if !flags.Has(value) {
				return false
			}
			continue
		}
		if format(got) != value {
			return false
		}
	}
	return true
}

func format(v packet.Value) string {
	switch v := v.(type) {
	case packet.Variant:
		return v.Name
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
