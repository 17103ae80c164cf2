/*
Package prompt builds the stage instructions sent to dispatched agents.

Build is a pure function from (task, project, stage, previous output,
error context) to instruction text. Each runnable stage gets distinct
wording, and every instruction ends with the mandatory callback clause
pointing the agent at the task-scoped advance and fail endpoints.
*/
package prompt
