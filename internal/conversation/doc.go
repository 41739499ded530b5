// Package conversation turns a user send into a persisted, possibly
// multi-agent, transcript exchange.
//
// Manager owns the live session set. Each Session holds its identity,
// primary agent, chain coordinator, feedback tracker, and an append-only
// transcript of Entry values.
//
// The send pipeline is optimistic: the user message is appended before
// its persistence write resolves, and a failed write marks the entry
// rather than rolling it back. Dispatch goes to the agent-query backend
// as a single or chained call depending on the chain coordinator's state
// at dispatch time. Any dispatch or inbound-persistence failure appends
// a fixed apology message that carries no ID and can never receive
// feedback.
//
// Replies append when their own dispatch resolves, so concurrent sends
// keep user messages in send order while bot replies may interleave.
package conversation
