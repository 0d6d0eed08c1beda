package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"engineerhub/internal/api"
	"engineerhub/internal/logging"
	"engineerhub/internal/paging"
	"engineerhub/internal/query"
)

var (
	postLike     bool
	postComments int
)

// postCmd shows one post
var postCmd = &cobra.Command{
	Use:   "post <id>",
	Short: "Show a post with its code snippet and latest comments",
	Args:  cobra.ExactArgs(1),
	RunE:  runPost,
}

func init() {
	postCmd.Flags().BoolVar(&postLike, "like", false, "toggle your like before showing the post")
	postCmd.Flags().IntVar(&postComments, "comments", 5, "number of comments to show (0 hides them)")
}

func runPost(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid post id %q", args[0])
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	post := query.New[api.Post](a.queries, fmt.Sprintf("post:%d", id), a.api.Post(id))
	defer post.Close()

	var comments *paging.Session[api.Comment]
	group := query.NewGroup(post)
	if postComments > 0 {
		comments = paging.NewSession(a.api.Comments(id), paging.Options{PageSize: postComments})
		group.Add(pageMember[api.Comment]{comments})
	}
	if err := group.Mount(ctx); err != nil {
		return err
	}
	st := post.State()
	if st.Err != nil {
		return fmt.Errorf("failed to load post %d: %w", id, st.Err)
	}

	if postLike {
		updated, err := a.api.ToggleLike(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to toggle like: %w", err)
		}
		post.Mutate(updated)
	}

	var list []api.Comment
	if comments != nil {
		cs := comments.State()
		if cs.Err != nil {
			logging.Get(logging.CategoryUI).Warn("comments for post %d unavailable: %v", id, cs.Err)
		}
		list = cs.Items
	}

	styles := stylesFor(ctx, cfg)
	r, err := styles.Markdown(80)
	if err != nil {
		return err
	}
	out, err := r.Render(postMarkdown(post.State().Data, list))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// pageMember lets a paging session join a query group by loading its
// first page.
type pageMember[T any] struct {
	s *paging.Session[T]
}

func (m pageMember[T]) Mount(ctx context.Context) error {
	return m.s.LoadPage(ctx, 1)
}

func (m pageMember[T]) Status() query.Status {
	st := m.s.State()
	return query.Status{
		IsLoading: st.IsLoading,
		HasLoaded: st.Status == paging.Loaded,
		Err:       st.Err,
	}
}
