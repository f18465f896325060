package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tower/pkg/slogx"
	"github.com/aussiebroadwan/tower/pkg/towersdk"
)

func (a *Application) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user and token expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me := a.session.Me()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Controller: %s\n", a.session)
			fmt.Fprintf(out, "User:       %s (%s)\n", me.Username, me.DisplayName())
			if me.Email != "" {
				fmt.Fprintf(out, "Email:      %s\n", me.Email)
			}
			switch {
			case me.IsSuperuser:
				fmt.Fprintf(out, "Role:       %s\n", color.YellowString("superuser"))
			case me.IsSystemAuditor:
				fmt.Fprintln(out, "Role:       system auditor")
			}
			fmt.Fprintf(out, "Expires:    %s\n", a.session.TokenExpiration().Local().Format(time.RFC3339))
			return nil
		},
	}
}

func (a *Application) endpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints [name...]",
		Short: "Resolve API endpoint names, or list every endpoint the controller advertises",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			if len(args) == 0 {
				// Authentication already discovered the route table
				table := a.session.Endpoints().Snapshot()
				names := make([]string, 0, len(table))
				for name := range table {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					fmt.Fprintf(w, "%s\t%s\n", name, table[name])
				}
				return w.Flush()
			}

			for _, name := range args {
				u, err := a.session.ResolveEndpoint(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\n", name, u)
			}
			return w.Flush()
		},
	}
}

func (a *Application) groupsCmd() *cobra.Command {
	groups := &cobra.Command{
		Use:   "groups",
		Short: "Inspect inventory groups",
	}

	groups.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every group with its host and failure counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := a.session.ListGroups(cmd.Context())
				return a.printGroups(cmd, list, err)
			},
		},
		&cobra.Command{
			Use:   "children <id>",
			Short: "List the direct child groups of a group",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				g, err := a.group(cmd, args[0])
				if err != nil {
					return err
				}
				children, err := g.ChildGroups(cmd.Context())
				return a.printGroups(cmd, children, err)
			},
		},
		&cobra.Command{
			Use:   "vars <id>",
			Short: "Print the variables of a group as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				g, err := a.group(cmd, args[0])
				if err != nil {
					return err
				}
				vars, err := g.FetchVariables(cmd.Context())
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(vars)
			},
		},
	)

	return groups
}

func (a *Application) group(cmd *cobra.Command, arg string) (*towersdk.Group, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid group id %q", arg)
	}
	return a.session.GetGroup(cmd.Context(), id)
}

// printGroups prints the groups that parsed. Items that did not are reported
// as warnings; any other error is returned after the groups gathered before it.
func (a *Application) printGroups(cmd *cobra.Command, groups []*towersdk.Group, err error) error {
	failed := err != nil && !onlyDeserialization(err)
	if failed && len(groups) == 0 {
		return err
	}

	if err := writeGroupTable(cmd.OutOrStdout(), groups); err != nil {
		return err
	}

	log := slogx.FromContext(cmd.Context())
	for _, g := range groups {
		if w := g.VariablesWarning(); w != nil {
			log.Warn("group variables ignored", "group", g.ID, "error", w)
		}
	}

	if failed {
		return err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.YellowString("warning:"), err)
	}
	return nil
}

// onlyDeserialization reports whether err, and every error joined into it,
// is a malformed item rather than a failed request.
func onlyDeserialization(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !onlyDeserialization(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, towersdk.ErrDeserialization)
}

const (
	colFailedHosts  = 4
	colFailedGroups = 6
	columnGap       = 2
)

// writeGroupTable aligns the columns on the plain text and colors failure
// counts afterwards, so escape codes never count towards a column's width.
func writeGroupTable(out io.Writer, groups []*towersdk.Group) error {
	rows := [][]string{{"ID", "NAME", "INVENTORY", "HOSTS", "FAILED HOSTS", "GROUPS", "FAILED GROUPS"}}
	for _, g := range groups {
		stats := g.Stats()
		rows = append(rows, []string{
			strconv.Itoa(g.ID),
			g.Name,
			strconv.Itoa(g.Inventory),
			strconv.Itoa(stats.TotalHosts),
			strconv.Itoa(stats.HostsWithActiveFailures),
			strconv.Itoa(stats.TotalGroups),
			strconv.Itoa(stats.GroupsWithActiveFailures),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	var b strings.Builder
	for r, row := range rows {
		for i, cell := range row {
			pad := 0
			if i < len(row)-1 {
				pad = widths[i] - utf8.RuneCountInString(cell) + columnGap
			}
			if r > 0 && (i == colFailedHosts || i == colFailedGroups) && cell != "0" {
				cell = color.RedString(cell)
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(out, b.String())
	return err
}
