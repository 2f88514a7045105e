// Package webhooks contains the signed ingress for reviewer
// interactions.
//
// Processing is two-phase: the processor verifies the signature,
// decodes the interaction, and acknowledges within the platform
// deadline; the decoded action events are handed to a sink that runs
// the state machine out of band. Duplicate deliveries are absorbed by
// a claim lifecycle: pending/retry_ready -> processing -> processed.
package webhooks
