package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"engineerhub/internal/paging"
)

var (
	feedPageSize int
	feedPages    int
)

// feedCmd scrolls the post feed
var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "List the post feed, loading more pages like an infinite scroll",
	Args:  cobra.NoArgs,
	RunE:  runFeed,
}

func init() {
	feedCmd.Flags().IntVar(&feedPageSize, "page-size", 0, "posts per page (default from config)")
	feedCmd.Flags().IntVar(&feedPages, "pages", 1, "number of pages to load")
}

func runFeed(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	size := feedPageSize
	if size <= 0 {
		size = cfg.Paging.PageSize
	}

	s := paging.NewSession(a.api.Feed(), paging.Options{PageSize: size, Mode: paging.Infinite})
	for i := 0; i < feedPages; i++ {
		if i > 0 && !s.State().HasNext {
			break
		}
		if err := s.LoadMore(cmd.Context()); err != nil {
			return err
		}
		if st := s.State(); st.Err != nil {
			return fmt.Errorf("failed to load feed: %w", st.Err)
		}
	}

	st := s.State()
	styles := stylesFor(cmd.Context(), cfg)
	out := cmd.OutOrStdout()
	for _, p := range st.Items {
		fmt.Fprintln(out, postLine(styles, p))
	}
	fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("%d of %d posts, page %d of %d",
		len(st.Items), st.TotalCount, st.CurrentPage, st.TotalPages)))
	return nil
}
