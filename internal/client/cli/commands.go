package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/client/services"
	"github.com/dmitrijs2005/matchbridge/internal/common"
)

var errUnknownSubject = errors.New("subject is not in the recommendations list")

type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

// Login requests an SMS code and submits it. The code may be passed as the
// first argument; otherwise it is read from the prompt.
func (a *App) Login(ctx context.Context, args []string) error {
	if err := a.auth.InitiateLogin(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "A code was sent to", a.auth.Snapshot().AccountID)

	var code string
	if len(args) > 0 {
		code = args[0]
		if err := validateOTP(code); err != nil {
			return err
		}
	} else {
		var err error
		if code, err = GetOTP(a.reader, a.out); err != nil {
			return err
		}
	}
	return a.submit(ctx, code)
}

// SubmitCode finishes a login started earlier.
func (a *App) SubmitCode(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("otp <code>")
	}
	if err := validateOTP(args[0]); err != nil {
		return err
	}
	return a.submit(ctx, args[0])
}

func (a *App) submit(ctx context.Context, code string) error {
	if err := a.auth.SubmitOTP(ctx, code); err != nil {
		a.setMode(ctx, ModeNeedsLogin)
		return err
	}
	a.setMode(ctx, ModeReady)
	fmt.Fprintln(a.out, "Logged in:", a.auth.State())
	return nil
}

func (a *App) Status(ctx context.Context) error {
	rec := a.auth.Snapshot()
	fmt.Fprintf(a.out, "account:   %s\n", rec.AccountID)
	fmt.Fprintf(a.out, "state:     %s\n", a.auth.State())
	if rec.IdentityID != "" {
		fmt.Fprintf(a.out, "identity:  %s\n", rec.IdentityID)
	}
	if !rec.PrimaryTokenExpires.IsZero() {
		fmt.Fprintf(a.out, "token exp: %s\n", rec.PrimaryTokenExpires.Local().Format("2006-01-02 15:04"))
	}
	if !rec.ChatTokenExpires.IsZero() {
		fmt.Fprintf(a.out, "chat exp:  %s\n", rec.ChatTokenExpires.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(a.out, "pending:   %d subjects\n", a.ledger.Len())
	return nil
}

// Feed pulls recommendations into the local list.
func (a *App) Feed(ctx context.Context) error {
	res, err := a.feed.FetchFeed(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Received %d subjects, %d new, %d pending\n", len(res.Subjects), res.Added, a.ledger.Len())
	return nil
}

func (a *App) List(ctx context.Context) error {
	subjects := a.ledger.Snapshot()
	if len(subjects) == 0 {
		fmt.Fprintln(a.out, "No pending subjects. Run 'feed' to fetch more.")
		return nil
	}
	for i, s := range subjects {
		origin := s.Origin.Raw()
		if origin == "" {
			origin = "-"
		}
		name := ""
		if h, ok := a.hydrated[s.SubjectID]; ok {
			name = displayName(h.Profile)
		}
		fmt.Fprintf(a.out, "%3d  %-36s  %-12s %s\n", i+1, s.SubjectID, origin, name)
	}
	return nil
}

// Show fetches and prints a subject's profile and content. Items are
// numbered so like can refer to them.
func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("show <subject-id>")
	}
	h, err := a.hydrate(ctx, args[0], true)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s  %s\n", h.Subject.SubjectID, displayName(h.Profile))
	if h.Content == nil {
		fmt.Fprintln(a.out, "  (no content)")
		return nil
	}
	for i, p := range h.Content.Photos {
		line := fmt.Sprintf("  photo %d: %s", i+1, p.URL)
		if p.Caption != "" {
			line += "  \"" + p.Caption + "\""
		}
		fmt.Fprintln(a.out, line)
	}
	for i, ans := range h.Content.Answers {
		resp := ans.Response
		if resp == "" {
			resp = "(voice or video)"
		}
		fmt.Fprintf(a.out, "  answer %d: %s: %s\n", i+1, ans.QuestionText(), resp)
	}
	return nil
}

// Like rates one photo or answer: like <id> <photo|answer> <n> [comment...].
func (a *App) Like(ctx context.Context, args []string, superlike bool) error {
	usage := usageError("like <subject-id> <photo|answer> <n> [comment...]")
	if superlike {
		usage = usageError("superlike <subject-id> <photo|answer> <n> [comment...]")
	}
	if len(args) < 3 {
		return usage
	}

	n, err := strconv.Atoi(args[2])
	if err != nil || n < 1 {
		return usage
	}

	h, err := a.hydrate(ctx, args[0], false)
	if err != nil {
		return err
	}
	item, err := pickItem(h.Content, args[1], n)
	if err != nil {
		return err
	}

	resp, err := a.rating.Like(ctx, h.Subject, item, services.LikeOptions{
		Comment:   strings.Join(args[3:], " "),
		Superlike: superlike,
	})
	if err == nil || errors.Is(err, common.ErrAlreadyRated) {
		delete(a.hydrated, h.Subject.SubjectID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Liked %s. Likes left: %d, superlikes left: %d\n",
		h.Subject.SubjectID, resp.Limit.LikesLeft, resp.Limit.SuperlikesLeft)
	return nil
}

func (a *App) Skip(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("skip <subject-id>")
	}
	subject, ok := a.ledger.Get(args[0])
	if !ok {
		return errUnknownSubject
	}
	err := a.rating.Skip(ctx, subject)
	if err == nil || errors.Is(err, common.ErrAlreadyRated) {
		delete(a.hydrated, subject.SubjectID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Skipped", subject.SubjectID)
	return nil
}

func (a *App) Limits(ctx context.Context) error {
	l, err := a.feed.LikeLimit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "likes left: %d\nsuperlikes left: %d\n", l.LikesLeft, l.SuperlikesLeft)
	if l.FreeSuperlikesLeft != nil {
		line := fmt.Sprintf("free superlikes left: %d", *l.FreeSuperlikesLeft)
		if l.FreeSuperlikeExpiration != nil {
			line += " (until " + l.FreeSuperlikeExpiration.Local().Format("2006-01-02 15:04") + ")"
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

// Me prints the signed-in user's own profile summary.
func (a *App) Me(ctx context.Context) error {
	p, err := a.feed.SelfProfile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s  %s\n", p.UserID, displayName(&models.UserProfile{UserID: p.UserID, Profile: p.Profile}))
	if p.Paused {
		fmt.Fprintln(a.out, "  profile is paused")
	}

	c, err := a.feed.SelfContent(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "  %d photos, %d answers\n", len(c.Photos), len(c.Answers))
	return nil
}

// History lists the ratings recorded for the current session.
func (a *App) History(ctx context.Context) error {
	entries, err := a.journal.List(ctx, a.auth.Snapshot().SessionID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No ratings yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%s  %-5s  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Kind, e.SubjectID)
	}
	return nil
}

// hydrate returns the cached content for id, fetching it when missing or
// when refresh is set.
func (a *App) hydrate(ctx context.Context, id string, refresh bool) (models.Hydrated, error) {
	subject, ok := a.ledger.Get(id)
	if !ok {
		return models.Hydrated{}, errUnknownSubject
	}
	if h, ok := a.hydrated[id]; ok && !refresh {
		return h, nil
	}

	res := a.feed.Hydrate(ctx, []models.Subject{subject})
	if res.ProfilesErr != nil && res.ContentErr != nil {
		return models.Hydrated{}, errors.Join(res.ProfilesErr, res.ContentErr)
	}
	h := res.Items[0]
	a.hydrated[id] = h
	return h, nil
}

func pickItem(c *models.ContentBundle, kind string, n int) (models.ContentItem, error) {
	if c == nil {
		return nil, errors.New("no content loaded for this subject")
	}
	switch kind {
	case "photo", "p":
		if n > len(c.Photos) {
			return nil, fmt.Errorf("photo %d does not exist, subject has %d", n, len(c.Photos))
		}
		return c.Photos[n-1], nil
	case "answer", "a":
		if n > len(c.Answers) {
			return nil, fmt.Errorf("answer %d does not exist, subject has %d", n, len(c.Answers))
		}
		return c.Answers[n-1], nil
	default:
		return nil, fmt.Errorf("unknown item kind %q, want photo or answer", kind)
	}
}

type profileSummary struct {
	FirstName string `json:"firstName"`
	Age       int    `json:"age"`
}

func displayName(p *models.UserProfile) string {
	if p == nil || len(p.Profile) == 0 {
		return ""
	}
	var s profileSummary
	if err := json.Unmarshal(p.Profile, &s); err != nil || s.FirstName == "" {
		return ""
	}
	if s.Age > 0 {
		return fmt.Sprintf("%s, %d", s.FirstName, s.Age)
	}
	return s.FirstName
}
