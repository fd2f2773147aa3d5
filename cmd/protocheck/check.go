package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/protoforge/internal/protocol/packet"
	"github.com/danmuck/protoforge/internal/protocol/schema"
)

func check(out io.Writer, path string, write bool) error {
	p, err := schema.Load(path)
	if err != nil {
		return err
	}
	proto, err := packet.Compile(p)
	if err != nil {
		return err
	}
	report := proto.Report()

	fmt.Fprintf(out, "ok %s: protocol %s, %d packets, %d shared types\n", path, p.Label(), report.Packets, report.Shared)
	for _, g := range proto.Summary() {
		fmt.Fprintf(out, "  %-12s %-12s %d packets\n", g.Direction, g.Stage, len(g.Packets))
		for _, pkt := range g.Packets {
			fmt.Fprintf(out, "    0x%02X %s\n", pkt.ID, pkt.Name)
		}
	}
	for _, gap := range report.Gaps {
		fmt.Fprintf(out, "warn %s\n", gap)
	}

	if write {
		if err := schema.Save(path, p); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("protocheck rewrote schema in canonical form")
	}
	return nil
}
