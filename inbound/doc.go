// Package inbound routes decoded action events to their surface
// handlers. The webhook processor feeds it reviewer interactions; the
// scheduler feeds it timeout events. Handlers wrap the state machine,
// so routing stays free of transition logic.
package inbound
