package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aussiebroadwan/authsession/internal/app"
	"github.com/aussiebroadwan/authsession/pkg/authsdk"
)

const usage = `usage: authsession <command> [flags]

commands:
  agent                      serve tokens to local processes until interrupted
  login -username NAME       sign in with a password (AUTHSESSION_PASSWORD or -password-stdin)
  social apple|facebook      sign in through a hosted identity provider
  token                      print the current token
  logout                     delete stored credentials and the session
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "agent" {
		if err := application.RunAgent(); err != nil {
			log.Fatalf("agent error: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = runOnce(ctx, application, cmd, args)
	stop()
	_ = application.Close()

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "authsession %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func runOnce(ctx context.Context, application *app.Application, cmd string, args []string) error {
	if err := application.Start(ctx); err != nil {
		return err
	}
	m := application.Manager()

	switch cmd {
	case "login":
		creds, err := parseLogin(args)
		if err != nil {
			return err
		}
		if err := m.Login(ctx, creds); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "signed in")

	case "social":
		if len(args) != 1 {
			return errUsage
		}
		var err error
		switch args[0] {
		case "apple":
			err = m.AppleLogin(ctx)
		case "facebook":
			err = m.FacebookLogin(ctx)
		default:
			return errUsage
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "signed in")

	case "token":
		token, err := m.GetToken(ctx)
		if err != nil {
			return err
		}
		fmt.Println(token)

	case "logout":
		if err := m.DeleteAuthentication(ctx); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "signed out")

	default:
		return errUsage
	}
	return nil
}

func parseLogin(args []string) (authsdk.Credentials, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", "", "username")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return authsdk.Credentials{}, errUsage
	}
	if *username == "" {
		return authsdk.Credentials{}, errUsage
	}

	password := os.Getenv("AUTHSESSION_PASSWORD")
	if *passwordStdin {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return authsdk.Credentials{}, fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return authsdk.Credentials{}, errors.New("no password given")
	}

	return authsdk.Credentials{Username: *username, Password: password}, nil
}
