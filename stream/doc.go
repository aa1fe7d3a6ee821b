/*
Package stream runs one-shot CLI tools and streams their stdout and stderr to a single client as a sequence of text events.

Processes are scoped to the client connection--that is, if the connection dies for any reason, the process group is terminated. Nothing about a session is registered anywhere, so there is nothing to control after launch except disconnecting.

Every event is a JSON object with a single "text" field. Two transports carry the same event sequence:

  - Server-Sent Events: each event is written as "data: <json>\n\n" and flushed immediately.
  - WebSocket: each event is one JSON text message; the server closes with a normal closure when the session is done.

A session proceeds as follows:

1. The tool id and target are validated and turned into an argument vector. If that fails, a single "[Error] ..." event is written and the session is closed.
2. The process is started. If it cannot be started, a single "[Error] Failed to start process: ..." event is written and the session is closed.
3. Each chunk read from stdout or stderr is written as its own event as soon as it is read. Chunks from the same stream keep their order; there is no ordering between the two streams.
4. Once both streams reach EOF and the process is reaped, a final "[Process exited with code N]" event is written and the output is closed.

The server does not buffer output beyond one read, so a slow client slows the process down rather than growing server memory.
*/
package stream
