// Package session runs the wire transport codec for one connection.
//
// Inbound bytes pass through decryption, the frame delimiter, decompression
// and the packet group of the current stage. Outbound packets take the
// reverse path. A Decoder or Encoder belongs to a single goroutine; a Conn
// lets one goroutine read while another writes, and carries control queues
// so either side can hand codec changes to the goroutine that owns them.
package session
