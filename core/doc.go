// Package core provides the foundational types shared by the agent runtime:
//
//   - Content and Part (role-based conversational content with a stable JSON
//     encoding, so a suspended run can be persisted and resumed later)
//   - Events (ordered records of what happened during a run)
//   - ToolContext (the scoped surface handed to tool implementations)
//   - ModelLimiter (per-run cap on model calls)
//
// Persistence, orchestration and concrete agents live in other packages; core
// only exposes small types those packages agree on.
package core
