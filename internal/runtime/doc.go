// Package runtime drives steps through their two phases.
//
// Resolve computes which agent runs next and stores the delegation stack on
// the step. Run executes that agent through a provider and creates the
// successor step, or records the final answer when the step is a closer.
// Each phase is one call, so a worker can interleave phases across
// conversations and resume after a crash from what is persisted.
package runtime
