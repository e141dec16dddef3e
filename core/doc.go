// Package core contains the connector's domain contracts, entities, and
// orchestration logic. Provider and transport adapters depend on this
// package; core must not depend on them.
package core
