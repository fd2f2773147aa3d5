// Package proxy relays game connections to an upstream server while
// decoding every frame with a compiled protocol.
//
// Each accepted connection gets two pumps, one per direction. A pump owns
// the decoder of the connection it reads and the encoder of the connection
// it writes; changes the other pump must see go through the Conn control
// queues. Rules from the config say which packets move the session to a new
// stage or turn on compression.
package proxy
