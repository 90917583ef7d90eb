package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func workspaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "List and create workspaces",
	}
	cmd.AddCommand(workspaceListCmd(a))
	cmd.AddCommand(workspaceCreateCmd(a))
	return cmd
}

func workspaceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the workspaces of the community",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.synchronizer()
			if err := s.LoadWorkspaces(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range s.Workspaces() {
				private := ""
				if w.IsPrivate {
					private = " (private)"
				}
				fmt.Fprintf(out, "%s  # %s%s\n", w.ID, w.Name, private)
			}
			return nil
		},
	}
}

func workspaceCreateCmd(a *app) *cobra.Command {
	var private bool

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a workspace and switch to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.synchronizer()
			if err := s.LoadWorkspaces(ctx); err != nil {
				return err
			}
			if err := s.CreateWorkspace(ctx, args[0], private); err != nil {
				return err
			}

			if w, ok := s.SelectedWorkspace(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  # %s\n", w.ID, w.Name)
			}
			return a.result()
		},
	}
	cmd.Flags().BoolVar(&private, "private", false, "make the workspace private")
	return cmd
}
