package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isReady() bool
	ensureReady(ctx context.Context) bool
	Login(ctx context.Context, args []string) error
	SubmitCode(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Feed(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	Like(ctx context.Context, args []string, superlike bool) error
	Skip(ctx context.Context, args []string) error
	Limits(ctx context.Context) error
	Me(ctx context.Context) error
	History(ctx context.Context) error
}

// runREPL reads commands line by line from reader and dispatches them to a.
// The loop exits on EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Always:
//	  - help                         show available commands
//	  - login [code]                 request an SMS code and sign in
//	  - otp <code>                   submit a code for a pending login
//	  - status                       show session state
//	  - history                      list ratings sent in this session
//	  - exit | quit                  leave the program
//
//	Signed in:
//	  - feed                         fetch recommendations
//	  - (l)ist                       list pending subjects
//	  - show <id>                    show a subject's photos and answers
//	  - like <id> <photo|answer> <n> [comment...]
//	  - superlike <id> <photo|answer> <n> [comment...]
//	  - skip <id>                    pass on a subject
//	  - limits                       show remaining likes
//	  - me                           show your own profile
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("mb> %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		if cmdErr := dispatch(ctx, a, cmd, args); cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "help":
		if a.isReady() {
			printlnFn("Available commands: feed, (l)ist, show, like, superlike, skip, limits, me, history, status, login, exit")
		} else {
			printlnFn("Available commands: login, otp, status, history, exit")
		}
		return nil
	case "login":
		return a.Login(ctx, args)
	case "otp":
		return a.SubmitCode(ctx, args)
	case "status":
		return a.Status(ctx)
	case "history":
		return a.History(ctx)
	}

	switch cmd {
	case "feed", "l", "list", "show", "like", "superlike", "skip", "limits", "me":
		if !a.ensureReady(ctx) {
			printlnFn("Please log in first.")
			return nil
		}
	}

	switch cmd {
	case "feed":
		return a.Feed(ctx)
	case "l", "list":
		return a.List(ctx)
	case "show":
		return a.Show(ctx, args)
	case "like":
		return a.Like(ctx, args, false)
	case "superlike":
		return a.Like(ctx, args, true)
	case "skip":
		return a.Skip(ctx, args)
	case "limits":
		return a.Limits(ctx)
	case "me":
		return a.Me(ctx)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}
