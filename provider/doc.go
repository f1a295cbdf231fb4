// Package provider adapts model provider APIs into run event streams. It lets
// the client drive a run directly against a provider (development, offline
// tooling, serverless deployments) instead of the chat backend, producing
// handles indistinguishable from transport-opened ones.
//
// The Streamer interface is the per-vendor seam; the anthropic and openai
// subpackages implement it over the official SDKs. Opener lifts any Streamer
// into the transport.Opener contract.
package provider
