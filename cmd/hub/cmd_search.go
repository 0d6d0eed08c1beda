package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"engineerhub/internal/paging"
)

var (
	searchRecent bool
	searchClear  bool
	searchPage   int
)

// searchCmd searches posts and manages recent searches
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search posts; --recent lists previous searches",
	Args:  cobra.ArbitraryArgs,
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchRecent, "recent", false, "list recent searches")
	searchCmd.Flags().BoolVar(&searchClear, "clear", false, "forget recent searches")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := openPrefs(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case searchClear:
		return store.ClearRecentSearches(ctx)
	case searchRecent:
		recent, err := store.RecentSearches(ctx)
		if err != nil {
			return err
		}
		for _, term := range recent {
			fmt.Fprintln(out, term)
		}
		return nil
	}

	term := strings.TrimSpace(strings.Join(args, " "))
	if term == "" {
		return fmt.Errorf("search needs a query (or --recent)")
	}
	if err := store.AddRecentSearch(ctx, term); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	s := paging.NewSession(a.api.SearchPosts(term), paging.Options{
		PageSize:    cfg.Paging.PageSize,
		AutoLoad:    true,
		InitialPage: searchPage,
	})
	if err := s.Start(ctx); err != nil {
		return err
	}
	st := s.State()
	if st.Err != nil {
		return fmt.Errorf("search failed: %w", st.Err)
	}

	styles := stylesFor(ctx, cfg)
	if len(st.Items) == 0 {
		fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("no posts match %q", term)))
		return nil
	}
	for _, p := range st.Items {
		fmt.Fprintln(out, postLine(styles, p))
	}
	fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("page %d of %d (%d results)", st.CurrentPage, st.TotalPages, st.TotalCount)))
	return nil
}
