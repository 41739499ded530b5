// Package store provides persistent storage for parley documents.
//
// # Collections
//
//   - Agent: configured responders (read-shared; only LastUsedAt is touched)
//   - Message: append-only session transcripts, optional file attachment
//     and chain metadata
//   - FeedbackRecord: one satisfaction rating per bot message, enforced by
//     a UNIQUE index on message_id
//   - GroupInvite / GroupChat: group membership invitations
//
// SQLiteStore is the canonical Store implementation (WAL mode, automatic
// schema creation). MockStore backs unit tests. Notifier fans out change
// events to live subscribers in place of a document-store realtime feed.
//
// Common errors:
//
//   - ErrNotFound: requested document does not exist
//   - ErrDuplicateFeedback: a second rating for the same message
//
// All methods accept context.Context for cancellation support.
package store
