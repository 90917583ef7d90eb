package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"klub/pkg/feed"
	"klub/pkg/models"
)

func (a *app) synchronizer() *feed.Synchronizer {
	return feed.New(a.client, a.client, a.notifier, feed.Options{
		CommunityID: a.cfg.CommunityID,
		User: models.Profile{
			ID:      a.cfg.Profile.ID,
			Name:    a.cfg.Profile.Name,
			Email:   a.cfg.Profile.Email,
			Contact: a.cfg.Profile.Contact,
		},
		PageLimit: a.cfg.PageLimit,
	})
}

// open loads the whole community feed, or one workspace when name is set.
func (a *app) open(ctx context.Context, name string) (*feed.Synchronizer, error) {
	s := a.synchronizer()
	if err := s.LoadWorkspaces(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		return s, s.LoadAll(ctx)
	}

	if err := s.SwitchWorkspace(ctx, name); err != nil {
		return nil, err
	}
	if _, ok := s.SelectedWorkspace(); !ok && !strings.EqualFold(name, feed.AllWorkspaces) {
		return nil, fmt.Errorf("unknown workspace %q", name)
	}
	return s, nil
}

// mutate applies fn to a freshly loaded feed, waits for the server to settle
// the change and prints the affected post.
func (a *app) mutate(cmd *cobra.Command, postID string, fn func(ctx context.Context, s *feed.Synchronizer) error) error {
	ctx := cmd.Context()
	s, err := a.open(ctx, "")
	if err != nil {
		return err
	}
	if err := fn(ctx, s); err != nil {
		return err
	}
	s.Wait()

	for _, p := range s.Posts() {
		if p.ID == postID {
			printPost(cmd.OutOrStdout(), p, s.Workspaces())
		}
	}
	return a.result()
}

func feedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Read and change the community feed",
	}
	cmd.AddCommand(feedListCmd(a))
	cmd.AddCommand(feedPostCmd(a))
	cmd.AddCommand(feedEditCmd(a))
	cmd.AddCommand(feedDeleteCmd(a))
	cmd.AddCommand(feedLikeCmd(a, true))
	cmd.AddCommand(feedLikeCmd(a, false))
	cmd.AddCommand(feedCommentCmd(a))
	return cmd
}

func feedListCmd(a *app) *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), workspace)
			if err != nil {
				return err
			}

			posts := s.Posts()
			out := cmd.OutOrStdout()
			if len(posts) == 0 {
				fmt.Fprintln(out, "No posts yet.")
			}
			for _, p := range posts {
				printPost(out, p, s.Workspaces())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", `workspace name, "# Name" or "All"`)
	return cmd
}

func feedPostCmd(a *app) *cobra.Command {
	var (
		workspace string
		media     []string
	)

	cmd := &cobra.Command{
		Use:   "post CONTENT...",
		Short: "Create a post in a workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, workspace)
			if err != nil {
				return err
			}
			if err := s.CreatePost(ctx, strings.Join(args, " "), media...); err != nil {
				return err
			}

			if posts := s.Posts(); len(posts) > 0 {
				printPost(cmd.OutOrStdout(), posts[0], s.Workspaces())
			}
			return a.result()
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace to post in")
	cmd.Flags().StringSliceVar(&media, "media", nil, "media URLs to attach")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func feedEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit POST_ID CONTENT...",
		Short: "Edit a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, args[0], func(ctx context.Context, s *feed.Synchronizer) error {
				return s.UpdatePost(ctx, args[0], strings.Join(args[1:], " "))
			})
		},
	}
}

func feedDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete POST_ID",
		Short: "Delete a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, args[0], func(ctx context.Context, s *feed.Synchronizer) error {
				return s.DeletePost(ctx, args[0])
			})
		},
	}
}

func feedLikeCmd(a *app, like bool) *cobra.Command {
	var comment string

	use, short := "like", "Like a post or one of its comments"
	if !like {
		use, short = "unlike", "Take back a like"
	}

	cmd := &cobra.Command{
		Use:   use + " POST_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID := args[0]
			return a.mutate(cmd, postID, func(ctx context.Context, s *feed.Synchronizer) error {
				switch {
				case like && comment == "":
					return s.LikePost(ctx, postID)
				case like:
					return s.LikeComment(ctx, postID, comment)
				case comment == "":
					return s.UnlikePost(ctx, postID)
				default:
					return s.UnlikeComment(ctx, postID, comment)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "c", "", "comment ID to target instead of the post")
	return cmd
}

func feedCommentCmd(a *app) *cobra.Command {
	var edit, del string

	cmd := &cobra.Command{
		Use:   "comment POST_ID [CONTENT...]",
		Short: "Comment on a post, or edit or delete a comment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, content := args[0], strings.Join(args[1:], " ")
			if edit != "" && del != "" {
				return fmt.Errorf("--edit and --delete are mutually exclusive")
			}

			return a.mutate(cmd, postID, func(ctx context.Context, s *feed.Synchronizer) error {
				switch {
				case del != "":
					return s.DeleteComment(ctx, postID, del)
				case edit != "":
					return s.UpdateComment(ctx, postID, edit, content)
				default:
					return s.CreateComment(ctx, postID, content)
				}
			})
		},
	}
	cmd.Flags().StringVar(&edit, "edit", "", "ID of the comment to replace with CONTENT")
	cmd.Flags().StringVar(&del, "delete", "", "ID of the comment to delete")
	return cmd
}

func printPost(w io.Writer, p models.Post, spaces []models.Workspace) {
	ws := p.WorkspaceID
	for _, s := range spaces {
		if s.ID == p.WorkspaceID {
			ws = s.Name
			break
		}
	}

	fmt.Fprintf(w, "%s  #%s  %s  %s\n", p.ID, ws, p.Author.Name, p.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "    %s\n", p.Content)
	for _, m := range p.Media {
		fmt.Fprintf(w, "    [media] %s\n", m)
	}
	fmt.Fprintf(w, "    %d likes, %d comments\n", len(p.Likes), len(p.Comments))
	for _, c := range p.Comments {
		fmt.Fprintf(w, "      %s  %s: %s (%d likes)\n", c.ID, c.Author.Name, c.Content, len(c.Likes))
	}
}
