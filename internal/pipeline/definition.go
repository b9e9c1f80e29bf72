package pipeline

import (
	"fmt"
	"maps"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paritytech/command-bot-sub000/internal/task"
	"github.com/paritytech/command-bot-sub000/internal/util"
)

// DefinitionFile is the CI definition committed onto the task branch.
const DefinitionFile = ".gitlab-ci.yml"

// JobName is the single job of every generated pipeline.
const JobName = "command"

// Fixed variables. Requester-supplied variables never override these.
const (
	VarOwner             = "GH_OWNER"
	VarOwnerRepo         = "GH_OWNER_REPO"
	VarOwnerBranch       = "GH_OWNER_BRANCH"
	VarContributor       = "GH_CONTRIBUTOR"
	VarContributorRepo   = "GH_CONTRIBUTOR_REPO"
	VarContributorBranch = "GH_CONTRIBUTOR_BRANCH"
	VarHeadSHA           = "GH_HEAD_SHA"
	VarIssueNumber       = "GH_ISSUE_NUMBER"
	VarCommitMessage     = "COMMIT_MESSAGE"
	VarCommand           = "COMMAND"
	VarScriptsRepository = "PIPELINE_SCRIPTS_REPOSITORY"
	VarScriptsRef        = "PIPELINE_SCRIPTS_REF"
	VarScriptsDir        = "PIPELINE_SCRIPTS_DIR"
)

type definition struct {
	Stages []string      `yaml:"stages"`
	Job    definitionJob `yaml:"command"`
}

type definitionJob struct {
	Stage     string              `yaml:"stage"`
	Image     string              `yaml:"image,omitempty"`
	Tags      []string            `yaml:"tags,omitempty"`
	Timeout   string              `yaml:"timeout,omitempty"`
	Variables map[string]string   `yaml:"variables"`
	Script    []string            `yaml:"script"`
	Artifacts definitionArtifacts `yaml:"artifacts"`
}

type definitionArtifacts struct {
	Name     string   `yaml:"name"`
	ExpireIn string   `yaml:"expire_in"`
	When     string   `yaml:"when"`
	Paths    []string `yaml:"paths"`
}

// Variables returns the job variables of t: the requester's variables with
// the fixed set laid over them.
func (c Config) Variables(t *task.Task, headSHA string) map[string]string {
	vars := maps.Clone(t.CI.Job.Variables)
	if vars == nil {
		vars = make(map[string]string)
	}

	up, contrib := t.GitRef.Upstream, t.GitRef.Contributor
	fixed := map[string]string{
		VarOwner:             up.Owner,
		VarOwnerRepo:         up.Repo,
		VarOwnerBranch:       up.Branch,
		VarContributor:       contrib.Owner,
		VarContributorRepo:   contrib.Repo,
		VarContributorBranch: contrib.Branch,
		VarHeadSHA:           headSHA,
		VarCommitMessage:     t.Command,
		VarCommand:           t.Command,
		VarScriptsRepository: c.ScriptsRepository,
		VarScriptsRef:        c.ScriptsRef,
		VarScriptsDir:        c.ScriptsDir,
	}
	if t.GitRef.PRNumber != nil {
		fixed[VarIssueNumber] = strconv.Itoa(*t.GitRef.PRNumber)
	}
	maps.Copy(vars, fixed)
	return vars
}

// RenderDefinition builds the CI definition running t at headSHA.
func (c Config) RenderDefinition(t *task.Task, headSHA string) ([]byte, error) {
	job := t.CI.Job
	image := job.Image
	if image == "" {
		image = c.DefaultImage
	}
	tags := job.Tags
	if len(tags) == 0 {
		tags = c.DefaultTags
	}

	var script []string
	if c.ScriptsRepository != "" {
		clone := fmt.Sprintf(`git clone --depth 1 "$%s" "$%s"`, VarScriptsRepository, VarScriptsDir)
		if c.ScriptsRef != "" {
			clone = fmt.Sprintf(`git clone --depth 1 --branch "$%s" "$%s" "$%s"`, VarScriptsRef, VarScriptsRepository, VarScriptsDir)
		}
		script = append(script, `rm -rf "$`+VarScriptsDir+`"`, clone)
	}
	script = append(script,
		`git reset --hard "$`+VarHeadSHA+`"`,
		"mkdir -p artifacts",
		`eval "$`+VarCommand+`"`,
	)

	def := definition{
		Stages: []string{JobName},
		Job: definitionJob{
			Stage:     JobName,
			Image:     image,
			Tags:      tags,
			Timeout:   c.DefaultTimeout,
			Variables: c.Variables(t, headSHA),
			Script:    script,
			Artifacts: definitionArtifacts{
				Name:     "${CI_JOB_NAME}_${CI_COMMIT_REF_NAME}",
				ExpireIn: "7 days",
				When:     "always",
				Paths:    []string{"artifacts/"},
			},
		},
	}

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("encode ci definition for task %s: %w", t.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode ci definition for task %s: %w", t.ID, err)
	}
	return []byte(b.String()), nil
}

// WriteDefinition renders the CI definition into the working copy at dir.
func (c Config) WriteDefinition(dir string, t *task.Task, headSHA string) error {
	data, err := c.RenderDefinition(t, headSHA)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(filepath.Join(dir, DefinitionFile), data, 0o644)
}
