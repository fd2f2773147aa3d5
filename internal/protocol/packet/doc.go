// Package packet compiles a validated schema into packet codecs.
//
// A compiled Protocol holds one Group per (direction, stage). A Group is the
// closed set of packet Definitions for that pair, addressed by id. Decoded
// packets carry a dynamic Value built from these Go types:
//
//	u8 i8 u16 i16 u32 i32 u64 i64   uint8 int8 uint16 int16 uint32 int32 uint64 int64
//	varint varlong                  int32 int64
//	f32 f64                         float32 float64
//	bool string uuid nbt            bool string uuid.UUID wire.NBT
//	array                           []any
//	option                          nil when absent, the inner value otherwise
//	struct                          Struct (Key and Constant fields are omitted)
//	enum                            Variant
//	bitfield                        Bits (bool members are 0 or 1)
//	bitflags                        Flags (ascending bit order)
//	unit                            Unit
//
// Encoders accept any Go integer type for integer fields as long as the value
// fits, and float64 for f32 fields.
package packet
