// Package protocol implements the line-oriented text protocol spoken
// between worldsync clients and the server.
//
// Every WebSocket text frame carries exactly one message. Messages are
// UTF-8 and dispatch on a short uppercase prefix:
//
//	client → server   PLAYER:<id>      join as entity <id> (non-negative integer)
//	client → server   UPDATE:<x>,<y>   move the joined entity to (x, y)
//	server → client   STATE:<json>     full world snapshot after any mutation
//	server → client   ECHO:<raw>       echo of an unrecognized client frame
//
// The codec is pure and stateless: parsing produces a closed set of
// Command variants exactly once, and downstream components never
// re-interpret raw frames. Snapshots encode as a JSON object mapping
// entity id to an [x, y] pair, e.g.
//
//	STATE:{"players":{"10":[1,1],"20":[0,0]}}
//
// Encoding is lossless for 64-bit ids and coordinates: ParseState of an
// EncodeState result reproduces an equivalent snapshot.
//
// Unknown frames are not protocol errors. ParseCommand returns them as
// Unrecognized so the session layer can echo them back; only malformed
// PLAYER and UPDATE payloads produce a *DecodeError.
package protocol
