// Package conversation holds the bounded dialogue history passed to the
// generation model across pipeline iterations.
//
// A Transcript is a value: Append returns a new Transcript and never
// mutates the receiver, so a run state can carry it by value and replace it
// as a whole. The system framing is always kept. Instruction/response pairs
// are dropped oldest first once the estimated token total exceeds the
// budget, but the most recent pair always survives.
package conversation
