// Package publish stores deliverable content and mints the reference
// the delivery transaction carries.
//
// IPFSPublisher pins through an IPFS node's HTTP API (or a hosted
// pinning endpoint speaking the same API). LocalPublisher derives a
// "local-" prefixed sha256 reference and keeps the bytes in memory.
// FallbackPublisher chains the two so a pinning outage downgrades the
// reference instead of blocking the delivery.
package publish
