// Package bot is the Telegram command surface. Handlers stay thin: parse,
// resolve who is acting, call the task services, reply. All policy lives in
// the services; all texture (HTML, mentions) lives here at the edge.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"taskbot/internal/clock"
	"taskbot/internal/task"
	"taskbot/internal/task/service"
	logx "taskbot/pkg/logx"
)

const handlerTimeout = 15 * time.Second

type Service struct {
	tb       *tele.Bot
	group    *service.GroupService
	personal *service.PersonalService
	clock    clock.Clock
	loc      *time.Location

	admins map[int64]struct{}
	log    logx.Logger
}

func New(tb *tele.Bot, group *service.GroupService, personal *service.PersonalService, clk clock.Clock, loc *time.Location, adminIDs []int64, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Service{tb: tb, group: group, personal: personal, clock: clk, loc: loc, admins: admins, log: log}
}

func (s *Service) isAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// Register wires all command handlers. Call once before Start.
func (s *Service) Register() {
	s.tb.Handle("/start", s.handleStart)
	s.tb.Handle("/help", s.handleStart)
	s.tb.Handle("/task", s.adminOnly(s.handleTask))
	s.tb.Handle("/done", s.handleDone)
	s.tb.Handle("/verify", s.adminOnly(s.handleVerify))
	s.tb.Handle("/reject", s.adminOnly(s.handleReject))
	s.tb.Handle("/reassign", s.adminOnly(s.handleReassign))
	s.tb.Handle("/cancel", s.adminOnly(s.handleCancel))
	s.tb.Handle("/remind", s.adminOnly(s.handleRemind))
	s.tb.Handle("/tasks", s.handleTasks)
	s.tb.Handle("/remindme", s.handleRemindMe)
}

func (s *Service) Start() { go s.tb.Start() }
func (s *Service) Stop()  { s.tb.Stop() }

func (s *Service) adminOnly(h func(tele.Context) error) func(tele.Context) error {
	return func(c tele.Context) error {
		if c.Sender() == nil || !s.isAdmin(c.Sender().ID) {
			return c.Reply("This command is for task admins.")
		}
		return h(c)
	}
}

func (s *Service) handleStart(c tele.Context) error {
	return c.Reply(strings.Join([]string{
		"Group task commands:",
		"/task [user_id] <title> [| due YYYY-MM-DD HH:MM] [| every N] (admin, reply to assign)",
		"/done <id> (assignee submits)",
		"/verify <id>, /reject <id>, /cancel <id> (admin)",
		"/reassign <id> <user_id> (admin, or reply)",
		"/remind <id> <minutes> (admin)",
		"/tasks (group tasks here, your tasks in private)",
		"/remindme <when> <title> (personal one-shot reminder)",
	}, "\n"))
}

func (s *Service) handleTask(c tele.Context) error {
	if c.Chat() == nil || c.Chat().Type == tele.ChatPrivate {
		return c.Reply("Group tasks are created inside a group.")
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	args, err := parseTaskArgs(c.Message().Payload, s.loc, s.clock.Now())
	if err != nil {
		return s.replyErr(c, err)
	}
	assignee := args.AssigneeID
	if r := c.Message().ReplyTo; r != nil && r.Sender != nil {
		assignee = r.Sender.ID
	}
	if assignee == 0 {
		return c.Reply("Reply to the assignee's message or lead with their user id.")
	}

	t, err := s.group.Create(ctx, service.CreateGroupTask{
		GroupID:                 c.Chat().ID,
		AssigneeID:              assignee,
		AssignedBy:              c.Sender().ID,
		Title:                   args.Title,
		DueDate:                 args.Due,
		ReminderIntervalMinutes: args.EveryMin,
	})
	if err != nil {
		return s.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("Task #%d assigned to %s.\n%s", t.ID, mention(t.AssigneeID), taskLine(t, s.loc)), tele.ModeHTML)
}

func (s *Service) handleDone(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	id, err := parseID(c.Message().Payload)
	if err != nil {
		return s.replyErr(c, err)
	}

	// In private chat /done closes a personal task; in a group it submits a
	// group task for review.
	if c.Chat() != nil && c.Chat().Type == tele.ChatPrivate {
		if _, err := s.personal.Complete(ctx, id, c.Sender().ID); err != nil {
			return s.replyErr(c, err)
		}
		return c.Reply(fmt.Sprintf("Task #%d completed.", id))
	}

	t, err := s.group.Submit(ctx, id, c.Sender().ID)
	if err != nil {
		return s.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("Task #%d submitted for review, %s please /verify %d or /reject %d.",
		t.ID, mention(t.AssignedBy), t.ID, t.ID), tele.ModeHTML)
}

func (s *Service) handleVerify(c tele.Context) error {
	return s.simpleTransition(c, func(ctx context.Context, id int64) (*task.Task, error) {
		return s.group.Verify(ctx, id, c.Sender().ID)
	}, "verified and completed")
}

func (s *Service) handleReject(c tele.Context) error {
	return s.simpleTransition(c, func(ctx context.Context, id int64) (*task.Task, error) {
		return s.group.Reject(ctx, id, c.Sender().ID)
	}, "sent back to work")
}

func (s *Service) handleCancel(c tele.Context) error {
	return s.simpleTransition(c, func(ctx context.Context, id int64) (*task.Task, error) {
		return s.group.Cancel(ctx, id, c.Sender().ID)
	}, "cancelled")
}

func (s *Service) simpleTransition(c tele.Context, op func(context.Context, int64) (*task.Task, error), verb string) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	id, err := parseID(c.Message().Payload)
	if err != nil {
		return s.replyErr(c, err)
	}
	t, err := op(ctx, id)
	if err != nil {
		return s.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("Task #%d %s.", t.ID, verb))
}

func (s *Service) handleReassign(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	fields := strings.Fields(c.Message().Payload)
	if len(fields) < 1 {
		return c.Reply("Usage: /reassign <task_id> <user_id> (or reply to the new assignee).")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return s.replyErr(c, err)
	}

	var newAssignee int64
	if r := c.Message().ReplyTo; r != nil && r.Sender != nil {
		newAssignee = r.Sender.ID
	} else if len(fields) >= 2 {
		newAssignee, err = parseID(fields[1])
		if err != nil {
			return s.replyErr(c, err)
		}
	}
	if newAssignee == 0 {
		return c.Reply("Usage: /reassign <task_id> <user_id> (or reply to the new assignee).")
	}

	t, err := s.group.Reassign(ctx, id, newAssignee, c.Sender().ID)
	if err != nil {
		return s.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("Task #%d reassigned to %s.", t.ID, mention(t.AssigneeID)), tele.ModeHTML)
}

func (s *Service) handleRemind(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	fields := strings.Fields(c.Message().Payload)
	if len(fields) != 2 {
		return c.Reply("Usage: /remind <task_id> <minutes>.")
	}
	id, err := parseID(fields[0])
	if err != nil {
		return s.replyErr(c, err)
	}
	minutes, err := parseID(fields[1])
	if err != nil {
		return c.Reply("Usage: /remind <task_id> <minutes>.")
	}

	t, err := s.group.SetReminderInterval(ctx, id, int(minutes))
	if err != nil {
		return s.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("Task #%d will be nudged every %d minutes during working hours.", t.ID, *t.ReminderIntervalMinutes))
}

func (s *Service) handleTasks(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var (
		items  []*task.Task
		header string
		err    error
	)
	if c.Chat() != nil && c.Chat().Type != tele.ChatPrivate {
		header = "Open tasks in this group:"
		items, err = s.group.ListGroup(ctx, c.Chat().ID, nil)
	} else {
		header = "Your tasks:"
		items, err = s.personal.List(ctx, c.Sender().ID)
		if err == nil {
			var assigned []*task.Task
			assigned, err = s.group.ListAssigned(ctx, c.Sender().ID, nil)
			items = append(items, assigned...)
		}
	}
	if err != nil {
		return s.replyErr(c, err)
	}

	var b strings.Builder
	for _, t := range items {
		if t.Status == task.StatusCompleted || t.Status == task.StatusCancelled {
			continue
		}
		b.WriteString(taskLine(t, s.loc))
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return c.Reply("Nothing open. Enjoy it.")
	}
	return c.Reply(header+"\n"+b.String(), tele.ModeHTML)
}

func (s *Service) handleRemindMe(c tele.Context) error {
	if c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
		return c.Reply("Personal reminders live in our private chat.")
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	at, title, err := parseRemindMe(c.Message().Payload, s.loc, s.clock.Now())
	if err != nil {
		return s.replyErr(c, err)
	}
	t, err := s.personal.Create(ctx, service.CreatePersonalTask{
		UserID:     c.Sender().ID,
		Title:      title,
		ReminderAt: &at,
	})
	if err != nil {
		return s.replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("Got it. Task #%d, I'll ping you at %s.", t.ID, at.In(s.loc).Format("2006-01-02 15:04")))
}

// replyErr turns domain errors into user-facing replies; anything else is
// logged and answered generically.
func (s *Service) replyErr(c tele.Context, err error) error {
	var verr *task.ValidationError
	if errors.As(err, &verr) {
		return c.Reply(verr.Reason)
	}
	var nf *task.NotFoundError
	if errors.As(err, &nf) {
		return c.Reply(fmt.Sprintf("Task #%d not found.", nf.ID))
	}
	s.log.Error("command failed", logx.Err(err))
	return c.Reply("Something went wrong, try again.")
}

func mention(userID int64) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">user</a>`, userID)
}

func taskLine(t *task.Task, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d <b>%s</b> [%s]", t.ID, html.EscapeString(t.Title), t.Status)
	if t.DueDate != nil {
		fmt.Fprintf(&b, " due %s", t.DueDate.In(loc).Format("2006-01-02 15:04"))
	}
	if t.ReminderIntervalMinutes != nil {
		fmt.Fprintf(&b, " every %dm", *t.ReminderIntervalMinutes)
	}
	return b.String()
}
