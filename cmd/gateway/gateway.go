package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/gwconsole/internal/app"
	gw "github.com/martinsuchenak/gwconsole/internal/gateway"
	"github.com/martinsuchenak/gwconsole/internal/model"
)

// Commands returns the gateway commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		listCommand(),
		showCommand(),
		cloneCommand(),
		publishCommand(),
		pendingCommand(),
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List gateways",
		Description: "Fetch all gateways from the management server, optionally filtered by name or IPv4 address",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Case-insensitive match on name or IPv4 address"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			gateways, err := a.Gateways.List(ctx, a.Sessions.Current())
			if err != nil {
				return err
			}
			printGateways(os.Stdout, gw.Filter(gateways, cmd.GetString("filter")), len(gateways))
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Show a gateway",
		Description: "Show the full configuration of one gateway",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "uid", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			g, err := a.Gateways.Get(ctx, a.Sessions.Current(), cmd.GetStringArg("uid"))
			if err != nil {
				return err
			}
			printGateway(os.Stdout, g)
			return nil
		},
	}
}

func cloneCommand() *cli.Command {
	return &cli.Command{
		Name:        "clone",
		Usage:       "Clone a gateway",
		Description: "Create a new gateway from an existing one with a new name and IPv4 address, then publish",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "source-uid", Required: true},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Name of the new gateway", Required: true},
			&cli.StringFlag{Name: "ip", Usage: "IPv4 address of the new gateway", Required: true},
			&cli.StringFlag{Name: "comment", Usage: "Comment (defaults to 'Clone of <source>')"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sess := a.Sessions.Current()
			source, err := a.Gateways.Get(ctx, sess, cmd.GetStringArg("source-uid"))
			if err != nil {
				return err
			}

			created, err := a.Cloner.Clone(ctx, sess, source, model.CloneRequest{
				Name:        cmd.GetString("name"),
				IPv4Address: cmd.GetString("ip"),
				Comment:     cmd.GetString("comment"),
			})
			var publishErr *gw.PublishFailedError
			if errors.As(err, &publishErr) {
				fmt.Fprintf(os.Stderr, "Gateway %s was created (uid %s) but not published.\n", publishErr.Gateway.Name, publishErr.Gateway.UID)
				fmt.Fprintf(os.Stderr, "Retry with: gwconsole gateway publish --uid %s\n", publishErr.Gateway.UID)
				return err
			}
			if err != nil {
				return err
			}

			fmt.Printf("Gateway created and published: %s (UID: %s)\n", created.Name, created.UID)
			return nil
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:        "publish",
		Usage:       "Publish pending changes",
		Description: "Publish the session's changes, or with --uid retry the publish of a clone left unpublished",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "uid", Usage: "UID of a created but unpublished clone"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sess := a.Sessions.Current()
			if uid := cmd.GetString("uid"); uid != "" {
				rec, err := a.Cloner.RetryPublish(ctx, sess, uid)
				if err != nil {
					return err
				}
				fmt.Printf("Published: %s (UID: %s)\n", rec.Name, rec.UID)
				return nil
			}

			taskID, err := a.Cloner.Publish(ctx, sess)
			if err != nil {
				return err
			}
			fmt.Printf("Publish started (task %s)\n", taskID)
			return nil
		},
	}
}

func pendingCommand() *cli.Command {
	return &cli.Command{
		Name:        "pending",
		Usage:       "List unpublished clones",
		Description: "List clones that were created on the management server but never published",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Cloner.PendingPublish(a.Sessions.Current())
			if err != nil {
				return err
			}
			printPending(os.Stdout, recs)
			return nil
		},
	}
}

func printGateways(w io.Writer, gateways []model.Gateway, total int) {
	if len(gateways) == 0 {
		fmt.Fprintln(w, "No gateways found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tNAME\tIPV4\tVERSION")
	for _, g := range gateways {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.UID, g.Name, g.IPv4Address, g.Version)
	}
	tw.Flush()

	if len(gateways) != total {
		fmt.Fprintf(w, "\n%d of %d gateways\n", len(gateways), total)
	}
}

func printGateway(w io.Writer, g *model.Gateway) {
	fmt.Fprintf(w, "UID:       %s\n", g.UID)
	fmt.Fprintf(w, "Name:      %s\n", g.Name)
	fmt.Fprintf(w, "Type:      %s\n", g.Type)
	fmt.Fprintf(w, "IPv4:      %s\n", g.IPv4Address)
	fmt.Fprintf(w, "Version:   %s\n", g.Version)
	fmt.Fprintf(w, "OS:        %s\n", g.OSName)
	fmt.Fprintf(w, "Hardware:  %s\n", g.Hardware)
	fmt.Fprintf(w, "SIC state: %s\n", g.SICState)
	if g.Domain != nil {
		fmt.Fprintf(w, "Domain:    %s\n", g.Domain.Name)
	}
	if len(g.Interfaces) > 0 {
		fmt.Fprintln(w, "Interfaces:")
		for _, iface := range g.Interfaces {
			fmt.Fprintf(w, "  - %s %s/%s\n", iface.Name, iface.IPv4Address, iface.IPv4MaskLength)
		}
	}
}

func printPending(w io.Writer, recs []model.CloneRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No unpublished clones")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tNAME\tIPV4\tSOURCE\tSTATE\tSESSION\tCREATED")
	for _, r := range recs {
		owner := "current"
		if r.OtherSession {
			owner = "other"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.UID, r.Name, r.IPv4Address, r.SourceName, r.State, owner, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}
