package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"felloe/internal/release"
	"felloe/internal/tui"
)

var (
	versionsFilter     string
	versionsPrerelease bool
	versionsLast       int
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached versions",
		Args:    cobra.NoArgs,
		RunE:    runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	versions, err := a.cachedVersions()
	if err != nil {
		return err
	}
	active, err := a.activeVersion(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, v := range versions {
		if v == active {
			fmt.Fprintln(out, tui.StatusStyle("activated").Render("* "+v))
			continue
		}
		fmt.Fprintln(out, "  "+v)
	}
	return nil
}

func newVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List upstream releases",
		Args:  cobra.NoArgs,
		RunE:  runVersions,
	}

	cmd.Flags().StringVarP(&versionsFilter, "filter", "f", "", "Only show tags containing this text")
	cmd.Flags().BoolVarP(&versionsPrerelease, "prerelease", "p", false, "Include prereleases")
	cmd.Flags().IntVarP(&versionsLast, "last", "n", 0, "Number of recent releases to query (default from config, 25)")
	return cmd
}

func runVersions(cmd *cobra.Command, _ []string) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	count := versionsLast
	if count <= 0 {
		count = a.cfg.ReleaseCount
	}

	releases, err := a.registry.List(ctx, count, versionsPrerelease)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range release.Filter(releases, versionsFilter) {
		fmt.Fprintln(out, r.Tag)
	}
	return nil
}
