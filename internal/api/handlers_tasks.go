package api

import (
	"fmt"
	"net/http"
	"strings"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/hosting"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// apiRequester is recorded on tasks queued without an explicit requester.
const apiRequester = "api"

// QueueRequest is the body of POST /api/queue.
type QueueRequest struct {
	Command   string       `json:"command"`
	Requester string       `json:"requester,omitempty"`
	Job       task.Job     `json:"job"`
	GitRef    *QueueGitRef `json:"git_ref,omitempty"`
	// Repository is a shorthand for git_ref: a clone URL whose default
	// branch is used for both upstream and contributor.
	Repository string `json:"repository,omitempty"`
	Branch     string `json:"branch,omitempty"`
	MatrixRoom string `json:"matrix_room"`
}

// QueueGitRef names the code an API task runs against.
type QueueGitRef struct {
	Upstream    task.RepoRef `json:"upstream"`
	Contributor task.RepoRef `json:"contributor"`
}

// QueueResponse is returned for an accepted task.
type QueueResponse struct {
	TaskID     string `json:"task_id"`
	QueuedDate string `json:"queued_date"`
	Message    string `json:"message"`
}

// TaskListResponse is returned by GET /api/tasks.
type TaskListResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

func (req QueueRequest) gitRef() (task.GitRef, error) {
	if req.GitRef != nil {
		ref := task.GitRef{Upstream: req.GitRef.Upstream, Contributor: req.GitRef.Contributor}
		if ref.Contributor.Owner == "" {
			ref.Contributor = ref.Upstream
		}
		if ref.Contributor.Branch == "" {
			ref.Contributor.Branch = ref.Upstream.Branch
		}
		return ref, nil
	}
	if req.Repository == "" {
		return task.GitRef{}, fmt.Errorf("git_ref or repository is required")
	}
	owner, repo := hosting.ParseOwnerRepo(req.Repository)
	if owner == "" || repo == "" {
		return task.GitRef{}, fmt.Errorf("cannot parse repository %q", req.Repository)
	}
	branch := req.Branch
	if branch == "" {
		branch = "master"
	}
	ref := task.RepoRef{Owner: owner, Repo: repo, Branch: branch}
	return task.GitRef{Upstream: ref, Contributor: ref}, nil
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	var req QueueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		JSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	id := s.engine.NextID()
	if strings.TrimSpace(req.Command) == "" {
		HandleError(w, boterrors.ErrInvalidTask(id, "command is required"))
		return
	}
	ref, err := req.gitRef()
	if err != nil {
		HandleError(w, boterrors.ErrInvalidTask(id, err.Error()))
		return
	}

	t := task.NewAPITask(id, task.APIOrigin{MatrixRoom: req.MatrixRoom})
	t.Command = req.Command
	t.Requester = req.Requester
	if t.Requester == "" {
		t.Requester = apiRequester
	}
	t.GitRef = ref
	t.CI.Job = req.Job

	enq, err := s.engine.Enqueue(r.Context(), t)
	if err != nil {
		s.logger.Warn("queue api task", "task_id", id, "error", err)
		HandleError(w, err)
		return
	}
	JSONResponseStatus(w, QueueResponse{
		TaskID:     enq.TaskID,
		QueuedDate: enq.QueuedDate,
		Message:    enq.Message,
	}, http.StatusCreated)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Cancel(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}
	NoContent(w)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.engine.Tasks(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	JSONResponse(w, TaskListResponse{Tasks: tasks})
}
