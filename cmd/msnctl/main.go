package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/config"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/rest"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/send"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/session"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	api := rest.New(cfg.APIBaseURL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: msnctl login <email>")
			os.Exit(1)
		}
		cmdLogin(ctx, api, sessionName, args[1])
	case "logout":
		cmdLogout(sessionName)
	case "whoami":
		cmdWhoami(sessionName, *jsonFlag)
	case "chats":
		cmdChats(ctx, api, sessionName, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: msnctl send <user-id> <text...>")
			os.Exit(1)
		}
		cmdSend(ctx, api, sessionName, args[1], strings.Join(args[2:], " "))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: msnctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <email>          Sign in and store the session credential")
	fmt.Fprintln(os.Stderr, "  logout                 Drop the stored credential")
	fmt.Fprintln(os.Stderr, "  whoami                 Show the signed-in user")
	fmt.Fprintln(os.Stderr, "  chats                  List chats")
	fmt.Fprintln(os.Stderr, "  send <user-id> <text>  Send a message to a user")
}

// loadCredential fetches the stored credential and installs its token.
func loadCredential(api *rest.Client, sessionName string) *session.Credential {
	cred, err := session.LoadCredential(sessionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: not logged in for session %q (run: msnctl login <email>)\n", sessionName)
		os.Exit(1)
	}
	if session.TokenExpired(cred.Token, time.Now()) {
		fmt.Fprintln(os.Stderr, "error: stored token expired, log in again")
		os.Exit(1)
	}
	api.SetToken(cred.Token)
	return cred
}

func cmdLogin(ctx context.Context, api *rest.Client, sessionName, email string) {
	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	password = strings.TrimRight(password, "\r\n")

	result, err := api.Login(ctx, email, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := session.EnsureDir(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cred := &session.Credential{
		UserID: result.User.ID,
		Email:  result.User.Email,
		Token:  result.Token,
	}
	if err := session.SaveCredential(sessionName, cred); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Logged in as %s (%s)\n", cred.UserID, cred.Email)
}

func cmdLogout(sessionName string) {
	if err := session.ClearCredential(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Logged out.")
}

func cmdWhoami(sessionName string, jsonOut bool) {
	cred, err := session.LoadCredential(sessionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: not logged in for session %q\n", sessionName)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]string{"userId": cred.UserID, "email": cred.Email})
		return
	}
	fmt.Printf("User:  %s\n", cred.UserID)
	fmt.Printf("Email: %s\n", cred.Email)
}

func cmdChats(ctx context.Context, api *rest.Client, sessionName string, jsonOut bool) {
	cred := loadCredential(api, sessionName)

	chats, err := api.FetchChats(ctx, cred.UserID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, c := range chats {
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Content
		}
		fmt.Printf("%-24s %-30s %s\n", c.ID, strings.Join(c.Participants, ","), preview)
	}
}

// cmdSend pushes one message through the same pipeline the TUI uses, over a
// throwaway in-memory store, and reports the resolved outcome.
func cmdSend(ctx context.Context, api *rest.Client, sessionName, recipientID, text string) {
	cred := loadCredential(api, sessionName)

	s := store.New(nil)
	chats, err := api.FetchChats(ctx, cred.UserID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	s.SetChats(chats)

	pipeline := send.NewPipeline(s, api, nil, nil, nil)
	defer pipeline.Close()

	if err := pipeline.SendText(ctx, cred.UserID, recipientID, "", text); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// SendText resolves synchronously; the outcome is in the store.
	key := send.PendingChatKey(recipientID)
	if chat, ok := s.DirectChatWith(cred.UserID, recipientID); ok {
		key = chat.ID
	}
	for _, m := range s.Messages(key) {
		if m.Status == store.StatusFailed {
			fmt.Fprintf(os.Stderr, "send failed: %s\n", m.Error)
			os.Exit(1)
		}
		fmt.Printf("Sent %s to %s\n", m.ID, recipientID)
		return
	}
	fmt.Fprintln(os.Stderr, "send failed: message not found after resolution")
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
