// Package notifier delivers the event digest to every bound channel.
//
// A dispatch classifies the current events once, renders the digest once and
// then, per destination, purges recent channel messages and posts the digest
// in order: ongoing before upcoming, each bucket led by a header embed.
//
// # Delivery
//
// Sends go through a Sender that applies a token-bucket limit and bounded
// retries with jittered backoff. A send that still fails aborts the rest of
// that destination only; other destinations proceed.
package notifier
