/*
Package health provides liveness probes for Hive's external
collaborators.

Checkers implement the Checker interface; AgentChecker is the one in
use, probing the agent runtime CLI so the /healthz endpoint can report
whether dispatch is currently possible. The orchestrator never consults
health results; a stuck run stays stuck regardless (fire-and-forget
dispatch has no watchdog).
*/
package health
