// Package triage provides the business boundary for Switchboard's ticket
// triage pipeline. It defines the Engine (staged orchestration with a
// data-driven fallback), the strategy interfaces each stage is injected
// through, the failure taxonomy, and the Service (batch processing,
// persistence, notification and publication of final decisions).
package triage
