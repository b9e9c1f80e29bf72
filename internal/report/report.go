// Package report delivers task messages back to whoever issued the command.
package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paritytech/command-bot-sub000/internal/task"
)

// Reporter delivers a message about t to its requester. Delivery is at least
// once; implementations may update t's origin (e.g. the status comment id).
type Reporter interface {
	Deliver(ctx context.Context, t *task.Task, message string) error
}

// CommentWriter creates or edits a PR comment and returns its id.
type CommentWriter interface {
	UpsertComment(ctx context.Context, owner, repo string, number int, commentID int64, body string) (int64, error)
}

// RoomSender posts a message to a chat room.
type RoomSender interface {
	Send(ctx context.Context, room, body string) (string, error)
}

// Router sends PR task messages to the PR's status comment and API task
// messages to their Matrix room. Either sink may be nil, in which case
// messages for it are only logged.
type Router struct {
	comments CommentWriter
	rooms    RoomSender
	logger   *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(comments CommentWriter, rooms RoomSender, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{comments: comments, rooms: rooms, logger: logger}
}

// Deliver implements Reporter.
func (r *Router) Deliver(ctx context.Context, t *task.Task, message string) error {
	return t.Visit(&delivery{router: r, ctx: ctx, message: message})
}

type delivery struct {
	router  *Router
	ctx     context.Context
	message string
}

func (d *delivery) VisitPullRequest(t *task.Task, o *task.PullRequestOrigin) error {
	if d.router.comments == nil {
		d.router.logger.Info("no GitHub client, dropping message", "task_id", t.ID, "message", d.message)
		return nil
	}
	body := d.message
	if t.Requester != "" {
		body = fmt.Sprintf("@%s %s", t.Requester, d.message)
	}
	id, err := d.router.comments.UpsertComment(d.ctx, o.Owner, o.Repo, o.Number, o.CommentID, body)
	if err != nil {
		return fmt.Errorf("deliver to %s/%s#%d: %w", o.Owner, o.Repo, o.Number, err)
	}
	o.CommentID = id
	return nil
}

func (d *delivery) VisitAPI(t *task.Task, o *task.APIOrigin) error {
	if d.router.rooms == nil || o.MatrixRoom == "" {
		d.router.logger.Info("no notification room, dropping message", "task_id", t.ID, "message", d.message)
		return nil
	}
	if _, err := d.router.rooms.Send(d.ctx, o.MatrixRoom, d.message); err != nil {
		return fmt.Errorf("deliver to room %s: %w", o.MatrixRoom, err)
	}
	return nil
}
