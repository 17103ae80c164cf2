/*
Package dispatch starts external agent workers for pipeline steps.

The Dispatcher interface models fire-and-forget dispatch: Start asks
the agent runtime to begin independent work under the given
instructions and returns an opaque session key once the runtime
acknowledges the spawn. The work itself completes out of process; the
worker reports back through the orchestrator's advance/fail callbacks
embedded in its instructions.

AgentClient is the production implementation, shelling out to the
runtime's CLI. Failures come back as *Error and are surfaced to the
caller; there is no automatic retry and no delivery guarantee beyond
the acknowledgment.
*/
package dispatch
