// Package protocol implements the CL7206C2 wire protocol: frame
// encoding, a streaming frame decoder with checksum resynchronization,
// the command registry, and the tag-notification payload decoder.
//
// Wire frame layout:
//
//	[0xAA][cmd][sub][len_hi][len_lo][payload ...][crc_hi][crc_lo]
//
// The 16-bit big-endian length counts payload bytes only. The CRC-16
// (see package crc) covers cmd through the end of the payload; the sync
// marker and the checksum itself are excluded.
//
// The reader is both a command responder and an autonomous event
// source: command responses echo the request's (cmd, sub) pair, while
// tag notifications (cmd 0x12) arrive unsolicited at any time. This
// package only produces and consumes frames; classification of frames
// as responses or events is the session layer's job.
package protocol
