// Package core contains the approval domain contracts, entities, and the
// state machine that owns every artifact transition. Ingress, scheduler,
// and storage adapters depend on this package; core must not depend on
// transport-specific or platform-specific adapters.
package core
