package pipeline

import (
	"fmt"
	"strconv"

	"github.com/paritytech/command-bot-sub000/internal/git"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// BranchPrefix namespaces every branch the driver pushes.
const BranchPrefix = "cmd-bot/"

// BranchName derives the per-task branch. The task id keeps concurrent
// tasks on the same PR apart.
func BranchName(t *task.Task) (string, error) {
	var scope string
	if t.GitRef.PRNumber != nil {
		scope = strconv.Itoa(*t.GitRef.PRNumber)
	} else {
		scope = git.SanitizeRefComponent(t.GitRef.Contributor.Branch)
	}
	name := BranchPrefix + scope + "-" + git.SanitizeRefComponent(t.ID)
	if err := git.ValidateBranchName(name); err != nil {
		return "", fmt.Errorf("branch for task %s: %w", t.ID, err)
	}
	return name, nil
}
