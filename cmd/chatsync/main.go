package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"chatsync/config"
	"chatsync/internal/api"
	"chatsync/internal/session"
	"chatsync/pkg/logger"
)

const usage = `
chatsync - terminal client for the realtime chat server

Usage:
  chatsync [command] [flags]

Commands:
  chat        Open the chat client (default)
  login       Log in and store credentials
  register    Create an account and store credentials
  logout      Forget stored credentials

Flags for login and register:
  -u string   Username
  -p string   Password

Environment:
  SERVER_URL, CREDENTIALS_FILE, LOG_FILE, STATUS_ADDR, MAX_UPLOAD_MB, UPLOAD_FIELD
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	command := "chat"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	args := flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	cfg := config.LoadConfig()
	store := session.NewFileStore(cfg.CredentialsFile)

	switch command {
	case "chat":
		if err := runChat(cfg, store); err != nil {
			log.Fatalf("chat: %v", err)
		}
	case "login":
		runAuth(cfg, store, "login", args)
	case "register":
		runAuth(cfg, store, "register", args)
	case "logout":
		runLogout(store)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runAuth(cfg *config.Config, store *session.FileStore, action string, args []string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	username := fs.String("u", "", "Username")
	password := fs.String("p", "", "Password")
	_ = fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("both -u and -p are required")
		os.Exit(1)
	}

	l := logger.New(cfg.AppMode, cfg.LogFile)
	defer l.Sync()
	client := api.NewClient(cfg.ServerURL, api.WithLogger(l), api.WithUploadField(cfg.UploadField))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		resp api.AuthResponse
		err  error
	)
	if action == "register" {
		resp, err = client.Register(ctx, *username, *password)
	} else {
		resp, err = client.Login(ctx, *username, *password)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", action, err)
	}

	creds := session.Credentials{Token: resp.Token, UserID: resp.User.ID, Username: resp.User.Username}
	if err := store.Save(creds); err != nil {
		log.Fatalf("save credentials: %v", err)
	}
	fmt.Printf("Logged in as %s (id %d). Credentials saved to %s\n", creds.Username, creds.UserID, store.Path())
}

func runLogout(store *session.FileStore) {
	if err := store.Clear(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("clear credentials: %v", err)
	}
	fmt.Println("Logged out.")
}
