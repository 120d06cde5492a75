// Package treegen grows a seed (intent, domain) pair into a tree of synthetic
// conversations.
//
// A branch starts with one user/assistant turn. After every turn the
// moderator proposes follow-up sub-intents; a random subset of them becomes
// child branches, each continuing an independent copy of the conversation so
// far. A branch ends when it reaches the turn limit, when no children are
// sampled, or when an agent keeps failing. Every ended branch is written once
// through a TranscriptWriter, and the tokens the whole tree consumed are
// appended to the ledger when the root returns.
//
// Expansion within one tree is synchronous and depth-first. Separate trees may
// run concurrently through a Dispatcher.
package treegen
