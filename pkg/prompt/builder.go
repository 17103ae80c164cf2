package prompt

import (
	"fmt"
	"strings"

	"github.com/atomhq/hive/pkg/types"
)

// Builder produces the instruction text handed to a dispatched agent.
// Build is pure: same inputs, same text. This is the single place
// stage wording changes.
type Builder struct {
	// BaseURL is the externally reachable address of the Hive API,
	// e.g. "http://127.0.0.1:3000". The callback URLs embedded in
	// every instruction are rooted here.
	BaseURL string
}

// NewBuilder creates a Builder rooting callbacks at baseURL.
func NewBuilder(baseURL string) *Builder {
	return &Builder{BaseURL: strings.TrimRight(baseURL, "/")}
}

// stageBriefs holds the distinct wording per runnable stage.
var stageBriefs = map[types.Stage]string{
	types.StageImplement: "Implement the task described below in the repository. " +
		"Write the code the spec asks for, keeping changes focused on the task.",
	types.StageVerify: "Verify the implementation of the task described below. " +
		"Read the changes critically, check them against the spec, and fix any gaps you find.",
	types.StageTest: "Test the task described below. " +
		"Run the project's test suite, add tests covering the new behavior, and make everything pass.",
	types.StageDeploy: "Deploy the task described below. " +
		"Follow the project's deploy procedure and confirm the change is live.",
}

// Build maps (task, project, stage, prior output, prior error) to the
// instruction payload for the agent. It always embeds the repository
// location, the task title and spec, the prior stage's output when
// available, and the mandatory callback contract. An errorContext (set
// on retry) is appended verbatim so the agent can see why the previous
// attempt failed.
func (b *Builder) Build(task *types.Task, project *types.Project, stage types.Stage, previousOutput, errorContext string) string {
	var sb strings.Builder

	brief, ok := stageBriefs[stage]
	if !ok {
		brief = fmt.Sprintf("Run the %s stage for the task described below.", stage)
	}
	sb.WriteString(brief)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Repository: %s\n", project.RepoPath)
	fmt.Fprintf(&sb, "Project: %s\n", project.Name)
	fmt.Fprintf(&sb, "Task: %s\n", task.Title)
	if task.Spec != "" {
		fmt.Fprintf(&sb, "\nSpec:\n%s\n", task.Spec)
	}

	if previousOutput != "" {
		fmt.Fprintf(&sb, "\nOutput from the previous stage:\n%s\n", previousOutput)
	}

	if errorContext != "" {
		fmt.Fprintf(&sb, "\nThe previous attempt at this stage failed. Error context:\n%s\n", errorContext)
	}

	sb.WriteString("\n")
	sb.WriteString(b.callbackClause(task.ID))

	return sb.String()
}

// callbackClause is the mandatory reporting contract. Every dispatched
// agent must hit exactly one of the two endpoints when it finishes.
func (b *Builder) callbackClause(taskID string) string {
	advance := fmt.Sprintf("%s/api/hive/tasks/%s/advance", b.BaseURL, taskID)
	fail := fmt.Sprintf("%s/api/hive/tasks/%s/fail", b.BaseURL, taskID)

	return fmt.Sprintf(`When you are finished you MUST report the result back to the pipeline. Call exactly one of:

  Success: curl -s -X POST %s -H 'Content-Type: application/json' -d '{"output":"<one-paragraph summary of what you did>"}'
  Failure: curl -s -X POST %s -H 'Content-Type: application/json' -d '{"error":"<what went wrong and why>"}'

Do not skip this step; the pipeline cannot advance without it.`, advance, fail)
}
