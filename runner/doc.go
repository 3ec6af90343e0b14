// Package runner executes agents.
//
// A run alternates model turns and tool turns until the model produces a
// final text answer. Tools that report NeedsApproval stop the run: the
// affected calls are returned as Interruptions and the whole conversation is
// captured in a RunState. The state is plain JSON, so callers can persist it
// (the desk stores it on the ticket), record decisions with Approve / Reject
// and continue later with Resume, possibly in another process.
//
// Approved calls execute on resume, rejected calls are answered to the model
// with a rejection message, and calls without a decision are evaluated again.
package runner
