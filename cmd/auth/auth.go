package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paularlott/cli"
	"golang.org/x/term"

	"github.com/martinsuchenak/gwconsole/internal/app"
	"github.com/martinsuchenak/gwconsole/internal/session"
)

// Commands returns the session commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		LoginCommand(),
		LogoutCommand(),
		StatusCommand(),
	}
}

// LoginCommand logs in to a management server and stores the session.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:        "login",
		Usage:       "Log in to a management server",
		Description: "Log in with --server and --username. The password is prompted for when --password is not given.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Administrator name", EnvVars: []string{"GWC_USERNAME"}},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (prompted when omitted)", EnvVars: []string{"GWC_PASSWORD"}},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			username := cmd.GetString("username")
			if username == "" {
				return errors.New("--username is required")
			}
			password := cmd.GetString("password")
			if password == "" {
				password, err = readPassword(os.Stdin, os.Stderr)
				if err != nil {
					return err
				}
			}

			sess, err := a.Sessions.Login(ctx, session.Credentials{
				ServerURL: a.Config.ServerURL,
				Username:  username,
				Password:  password,
				Domain:    a.Config.Domain,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Logged in to %s as %s\n", sess.ServerURL, sess.Username)
			return nil
		},
	}
}

// LogoutCommand ends the stored session.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:        "logout",
		Usage:       "Log out and forget the stored session",
		Description: "End the session on the management server when reachable and always erase it locally",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.Sessions.Current().Authenticated() {
				fmt.Println("Not logged in")
				return nil
			}
			if err := a.Sessions.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

// StatusCommand prints the stored session without its token.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Usage:       "Show the stored session",
		Description: "Show the management server and administrator of the stored session",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			printStatus(os.Stdout, a.Sessions.Current().Status())
			return nil
		},
	}
}

func printStatus(w io.Writer, st session.Status) {
	if !st.Authenticated {
		fmt.Fprintln(w, "Not logged in")
		return
	}
	fmt.Fprintf(w, "Server:    %s\n", st.ServerURL)
	fmt.Fprintf(w, "Username:  %s\n", st.Username)
	if st.Domain != "" {
		fmt.Fprintf(w, "Domain:    %s\n", st.Domain)
	}
	if st.LoggedInAt != nil {
		fmt.Fprintf(w, "Logged in: %s\n", st.LoggedInAt.Local().Format("2006-01-02 15:04:05"))
	}
}

// readPassword prompts on prompt when in is a terminal and otherwise reads
// one line from in.
func readPassword(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	return readPasswordLine(in)
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required")
	}
	return line, nil
}
