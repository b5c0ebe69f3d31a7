package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/forgeclient/pkg/forge"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, ctx, cancel, err := openAdapter()
			if err != nil {
				return err
			}
			defer cancel()

			user, err := adapter.CurrentUser(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), user, func(o *output) { o.user(user) })
		},
	}
}

func newRepoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repo <owner/name|id>",
		Short: "Show a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, ctx, cancel, err := openAdapter()
			if err != nil {
				return err
			}
			defer cancel()

			var repo *forge.Repository
			if id := forge.ParseID(args[0]); id.Kind() == forge.IDNumeric {
				repo, err = adapter.GetRepository(ctx, id)
			} else {
				repo, err = adapter.FindRepository(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), repo, func(o *output) { o.repository(repo) })
		},
	}
}

type listFlags struct {
	state   string
	labels  []string
	page    int
	perPage int
}

func (f *listFlags) register(c *cobra.Command, withLabels bool) {
	c.Flags().StringVar(&f.state, "state", "open", "State filter: open|closed|merged|all")
	if withLabels {
		c.Flags().StringSliceVar(&f.labels, "label", nil, "Only include items with these labels")
	}
	c.Flags().IntVar(&f.page, "page", 1, "Page number")
	c.Flags().IntVar(&f.perPage, "per-page", forge.DefaultPageSize, "Items per page (max 100)")
}

func (f *listFlags) parseState() (forge.State, error) {
	s := forge.State(strings.ToLower(f.state))
	switch s {
	case forge.StateOpen, forge.StateClosed, forge.StateMerged, forge.StateAll:
		return s, nil
	}
	return "", fmt.Errorf("unsupported state: %s", f.state)
}

func (f *listFlags) listOptions() forge.ListOptions {
	return forge.ListOptions{Page: f.page, PerPage: f.perPage}
}

func newIssuesCmd() *cobra.Command {
	var flags listFlags
	c := &cobra.Command{
		Use:   "issues <repo>",
		Short: "List issues of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := flags.parseState()
			if err != nil {
				return err
			}
			adapter, ctx, cancel, err := openAdapter()
			if err != nil {
				return err
			}
			defer cancel()

			repo, err := resolveRepo(ctx, adapter, args[0])
			if err != nil {
				return err
			}
			issues, err := adapter.ListIssues(ctx, repo, forge.IssueListOptions{
				ListOptions: flags.listOptions(),
				State:       state,
				Labels:      flags.labels,
			})
			if err != nil {
				return err
			}
			slog.Info("Listed issues", "repository", args[0], "count", len(issues))
			return render(cmd.OutOrStdout(), issues, func(o *output) { o.issues(issues) })
		},
	}
	flags.register(c, true)
	return c
}

func newPullRequestsCmd() *cobra.Command {
	var flags listFlags
	c := &cobra.Command{
		Use:     "prs <repo>",
		Aliases: []string{"mrs"},
		Short:   "List pull (merge) requests of a repository",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := flags.parseState()
			if err != nil {
				return err
			}
			adapter, ctx, cancel, err := openAdapter()
			if err != nil {
				return err
			}
			defer cancel()

			repo, err := resolveRepo(ctx, adapter, args[0])
			if err != nil {
				return err
			}
			prs, err := adapter.ListPullRequests(ctx, repo, forge.PullRequestListOptions{
				ListOptions: flags.listOptions(),
				State:       state,
			})
			if err != nil {
				return err
			}
			slog.Info("Listed pull requests", "repository", args[0], "count", len(prs))
			return render(cmd.OutOrStdout(), prs, func(o *output) { o.pullRequests(prs) })
		},
	}
	flags.register(c, false)
	return c
}

func newBranchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branches <repo>",
		Short: "List branches of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, ctx, cancel, err := openAdapter()
			if err != nil {
				return err
			}
			defer cancel()

			repo, err := resolveRepo(ctx, adapter, args[0])
			if err != nil {
				return err
			}
			branches, err := adapter.ListBranches(ctx, repo)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), branches, func(o *output) { o.branches(branches) })
		},
	}
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <repo> <number>",
		Short: "Show the changed files of a pull request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil || number <= 0 {
				return fmt.Errorf("invalid pull request number: %s", args[1])
			}
			adapter, ctx, cancel, err := openAdapter()
			if err != nil {
				return err
			}
			defer cancel()

			repo, err := resolveRepo(ctx, adapter, args[0])
			if err != nil {
				return err
			}
			diff, err := adapter.GetPullRequestDiff(ctx, repo, number)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), diff, func(o *output) { o.diff(diff) })
		},
	}
}

func newRateLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate-limit",
		Short: "Show the API quota reported by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, ctx, cancel, err := openAdapter()
			if err != nil {
				return err
			}
			defer cancel()

			// Quota headers ride on every response; any cheap call yields them.
			if _, err := adapter.CurrentUser(ctx); err != nil {
				return err
			}
			rl, ok := adapter.RateLimit()
			if !ok {
				return fmt.Errorf("%s did not report rate limit headers", adapter.Backend())
			}
			payload := rateLimitJSON{
				Backend:   string(adapter.Backend()),
				Limit:     rl.Limit,
				Remaining: rl.Remaining,
				Used:      rl.Used,
				Resource:  rl.Resource,
			}
			if !rl.Reset.IsZero() {
				reset := rl.Reset.UTC()
				payload.Reset = &reset
			}
			return render(cmd.OutOrStdout(), payload, func(o *output) { o.rateLimit(payload) })
		},
	}
}
