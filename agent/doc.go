// Package agent defines model backed agents: a name, an instruction (static,
// templated or computed per run), a model, a set of tools and an optional
// structured output schema.
//
// Agents are plain definitions. Execution, approval interruptions and
// resumption live in the runner package.
package agent
