// Package memory recalls a support agent's past preferred answers. Recall is
// a keyword overlap ranking over plain strings, so the persona record itself
// stays the single source of truth for what an agent remembers.
package memory
