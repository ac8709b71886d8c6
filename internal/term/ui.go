// Package term is the line-oriented terminal front end. It is a thin
// projection of controller snapshots: commands map one-to-one onto
// controller operations and every state change prints incrementally.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"chat-client/internal/controller"
	"chat-client/internal/models"
)

// UI runs the interactive loop against a controller.
type UI struct {
	ctrl *controller.Controller
	in   io.Reader
	out  io.Writer

	lastPrinted int // messages already rendered for the active room
	lastRoom    string
}

// New builds a UI. Call Run to start the loop.
func New(ctrl *controller.Controller, in io.Reader, out io.Writer) *UI {
	ui := &UI{ctrl: ctrl, in: in, out: out}
	ctrl.OnChange(ui.render)
	ctrl.OnNotification(func(msg models.Message) {
		fmt.Fprintf(out, "\n[%s] %s: %s\n", msg.Room, msg.Sender, msg.Content)
	})
	return ui
}

// render prints the delta since the last snapshot. Runs under the
// controller's lock, so it only writes.
func (u *UI) render(snap controller.Snapshot) {
	if snap.ActiveRoom != u.lastRoom {
		u.lastRoom = snap.ActiveRoom
		u.lastPrinted = 0
		if snap.ActiveRoom != "" {
			fmt.Fprintf(u.out, "--- room: %s ---\n", snap.ActiveRoom)
		}
	}
	for _, msg := range snap.Messages[min(u.lastPrinted, len(snap.Messages)):] {
		fmt.Fprintf(u.out, "%s %s: %s\n", msg.Timestamp.Local().Format("15:04:05"), msg.Sender, msg.Content)
	}
	u.lastPrinted = len(snap.Messages)
	if len(snap.Typing) > 0 {
		fmt.Fprintf(u.out, "(%s typing...)\n", strings.Join(snap.Typing, ", "))
	}
}

// Run reads commands until EOF or /quit.
func (u *UI) Run(ctx context.Context) error {
	fmt.Fprintln(u.out, "chat-client: /help for commands")
	scanner := bufio.NewScanner(u.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		u.dispatch(ctx, line)
	}
	return scanner.Err()
}

func (u *UI) dispatch(ctx context.Context, line string) {
	if !strings.HasPrefix(line, "/") {
		u.report(u.ctrl.SendMessage(line))
		return
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		u.printHelp()
	case "/login":
		if len(args) != 2 {
			fmt.Fprintln(u.out, "usage: /login <user> <pass>")
			return
		}
		u.report(u.ctrl.Login(ctx, args[0], args[1]))
	case "/signup":
		if len(args) != 2 {
			fmt.Fprintln(u.out, "usage: /signup <user> <pass>")
			return
		}
		u.report(u.ctrl.Signup(ctx, args[0], args[1]))
	case "/logout":
		u.report(u.ctrl.Logout())
	case "/rooms":
		snap := u.ctrl.Snapshot()
		for _, r := range snap.Rooms {
			fmt.Fprintf(u.out, "  %s\n", r.Name)
		}
	case "/join":
		if len(args) != 1 {
			fmt.Fprintln(u.out, "usage: /join <room>")
			return
		}
		u.report(u.ctrl.EnterRoom(ctx, args[0]))
	case "/exit":
		u.report(u.ctrl.ExitRoom())
	case "/leave":
		u.report(u.ctrl.LeaveRoom(ctx))
	case "/create":
		if len(args) != 1 {
			fmt.Fprintln(u.out, "usage: /create <room>")
			return
		}
		u.report(u.ctrl.CreateRoom(ctx, args[0]))
	case "/who":
		snap := u.ctrl.Snapshot()
		fmt.Fprintf(u.out, "  %s\n", strings.Join(snap.Presence, ", "))
	case "/typing":
		u.report(u.ctrl.SetTyping(true))
	case "/search":
		if len(args) == 0 {
			fmt.Fprintln(u.out, "usage: /search <query>")
			return
		}
		results, err := u.ctrl.Search(ctx, strings.Join(args, " "))
		if err != nil {
			u.report(err)
			return
		}
		if len(results) == 0 {
			fmt.Fprintln(u.out, "no matches")
			return
		}
		for _, msg := range results {
			fmt.Fprintf(u.out, "  [%s] %s: %s\n", msg.Room, msg.Sender, msg.Content)
		}
	case "/friends":
		snap := u.ctrl.Snapshot()
		for _, f := range snap.Friends {
			fmt.Fprintf(u.out, "  %s (room %s)\n", f.Username, f.RoomName)
		}
	case "/befriend":
		if len(args) != 1 {
			fmt.Fprintln(u.out, "usage: /befriend <user>")
			return
		}
		u.report(u.ctrl.SendFriendRequest(ctx, args[0]))
	case "/unfriend":
		if len(args) != 1 {
			fmt.Fprintln(u.out, "usage: /unfriend <user>")
			return
		}
		u.report(u.ctrl.RemoveFriend(ctx, args[0]))
	case "/requests":
		snap := u.ctrl.Snapshot()
		for _, r := range snap.FriendRequests {
			fmt.Fprintf(u.out, "  #%d from %s\n", r.ID, r.FromUsername)
		}
	case "/accept", "/reject":
		if len(args) != 1 {
			fmt.Fprintf(u.out, "usage: %s <request-id>\n", cmd)
			return
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintln(u.out, "invalid id")
			return
		}
		u.report(u.ctrl.RespondFriendRequest(ctx, id, cmd == "/accept"))
	case "/invite":
		if len(args) != 2 {
			fmt.Fprintln(u.out, "usage: /invite <room> <user>")
			return
		}
		u.report(u.ctrl.SendRoomInvite(ctx, args[0], args[1]))
	case "/invites":
		snap := u.ctrl.Snapshot()
		for _, inv := range snap.RoomInvites {
			fmt.Fprintf(u.out, "  #%d %s from %s\n", inv.ID, inv.RoomName, inv.FromUsername)
		}
	case "/accept-invite", "/reject-invite":
		if len(args) != 1 {
			fmt.Fprintf(u.out, "usage: %s <invite-id>\n", cmd)
			return
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintln(u.out, "invalid id")
			return
		}
		accept := cmd == "/accept-invite"
		if err := u.ctrl.RespondRoomInvite(ctx, id, accept); err != nil {
			u.report(err)
			return
		}
		if accept {
			fmt.Fprintln(u.out, "invite accepted, /join the room to start chatting")
		}
	case "/status":
		snap := u.ctrl.Snapshot()
		fmt.Fprintf(u.out, "  state=%s identity=%s room=%s\n", snap.State, snap.Identity, snap.ActiveRoom)
	default:
		fmt.Fprintf(u.out, "unknown command %s\n", cmd)
	}
}

func (u *UI) report(err error) {
	if err != nil {
		fmt.Fprintf(u.out, "error: %v\n", err)
	}
}

func (u *UI) printHelp() {
	help := []string{
		"/login <user> <pass>    authenticate",
		"/signup <user> <pass>   register and authenticate",
		"/logout                 clear the session",
		"/rooms                  list visible rooms",
		"/join <room>            make a room active",
		"/exit                   back to the lobby",
		"/leave                  abandon the active room",
		"/create <room>          create and join a room",
		"/who                    presence in the active room",
		"/search <query>         full-text message search",
		"/friends /befriend /unfriend /requests /accept /reject",
		"/invite <room> <user> /invites /accept-invite /reject-invite",
		"/status /quit",
		"anything else           send as a message",
	}
	for _, line := range help {
		fmt.Fprintln(u.out, "  "+line)
	}
}
