// Package inbound exposes the connector over its single dispatch surface.
//
// One JSON endpoint accepts every action; the dispatcher enforces the
// session requirement and routes to the core service.
package inbound
