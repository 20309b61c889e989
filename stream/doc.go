// Package stream reconciles the gateway's two redundant narration
// channels into one coherent chat transcript.
//
// The server may narrate a single assistant turn over both a primary
// "chat" channel and a secondary "agent" channel, with overlapping
// content. A Session enforces first-source-wins exclusive ownership:
// whichever channel delivers the first accepted chunk narrates the whole
// turn, and the other channel is discarded until the turn finalizes into
// an immutable message. Synthetic heartbeat content is filtered from both
// channels before it can claim ownership or reach the transcript.
//
// Conversation layers the send path on top: it issues chat.send RPCs and
// treats an acknowledgement timeout as success, because the reply content
// arrives exclusively through the narration channels.
package stream
