// Package notify delivers verification codes to users.
//
// The engine depends only on [Sender]. [ChannelSender] hands messages to
// an in-process consumer (tests, local development) and [JSONWriterSender]
// writes them as JSON lines. Production deployments plug in their own
// mail or SMS gateway.
package notify
