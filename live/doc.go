// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package live runs the dental mode behind a WebSocket for an open viewer.

Each connection gets its own measurement store and dental mode. The viewer
reports measurement events; the server enriches them and pushes the changed
measurements back. Every message is JSON:

	{"type": "measurement_added", "data": {...}}
	{"type": "measurement_update", "code": 0, "data": {...}}

Errors carry a non-zero code and the inbound message is dropped. The hub
tracks connections per user and closes them all when its context ends.
*/
package live
