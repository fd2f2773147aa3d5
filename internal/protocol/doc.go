// Package protocol groups the schema-driven game protocol toolkit.
//
// Layers, bottom up:
// - wire: primitive readers and writers (VarInt, strings, UUID, NBT)
// - schema: protocol model, validation and TOML documents
// - packet: compiled packet codecs grouped by direction and stage
// - frame, compress, crypt: transport stages
// - session: per-connection decoder, encoder and Conn
package protocol
