// Package wire implements the primitive codec shared by every packet:
// fixed-width big-endian integers and floats, strict booleans, UUIDs,
// VarInt-prefixed strings, VarInt/VarLong, and NBT blobs.
//
// Reader consumes a byte slice without copying. Writer appends to a growable
// buffer. Neither performs I/O; short input is reported as ErrNotEnoughBytes
// and callers decide whether that means "wait" or "malformed".
package wire
