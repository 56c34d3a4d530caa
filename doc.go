// Package trajexec tracks the asynchronous execution of joint trajectories
// performed by an external controller.
//
// The package provides a one-shot, thread-safe Future for the eventual outcome
// of a dispatched trajectory, a TrajectoryExecution that accumulates the
// partially executed trajectory from controller feedback while the goal is
// still running, and (in the registry subpackage) an ExecutionRegistry that
// tracks every execution currently in flight.
//
// Motion planning, joint semantics, and retry policy are out of scope: the
// caller supplies a finished trajectory and decides what to do with a failed
// execution. Transport is abstracted behind the Dispatcher interface; the
// dispatcher subpackage ships an in-process implementation used by tests and
// the examples.
package trajexec
