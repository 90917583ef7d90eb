package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"klub/internal/fakeklub"
	"klub/pkg/checkout"
	"klub/pkg/models"
	"klub/pkg/payment"
)

// navigationGrace is how long to wait past the navigate delay before giving up.
const navigationGrace = 2 * time.Second

func payCmd(a *app) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Buy a course, join a community or create one",
	}
	cmd.PersistentFlags().StringVar(&description, "description", "", "description shown in the checkout")

	cmd.AddCommand(&cobra.Command{
		Use:   "course COURSE_ID",
		Short: "Buy a course of the community",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.purchase(cmd, payment.Purchase{
				Flow:        payment.CoursePurchase,
				CommunityID: a.cfg.CommunityID,
				CourseID:    args[0],
				Description: description,
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "join [COMMUNITY_ID]",
		Short: "Join a community, paying if it is paid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			communityID := a.cfg.CommunityID
			if len(args) == 1 {
				communityID = args[0]
			}
			return a.purchase(cmd, payment.Purchase{
				Flow:        payment.JoinCommunity,
				CommunityID: communityID,
				Description: description,
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "create-community",
		Short: "Subscribe to the plan that creates a new community",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.purchase(cmd, payment.Purchase{
				Flow:        payment.CreateCommunity,
				Description: description,
			})
		},
	})
	return cmd
}

// checkout picks the gateway script and widgets: the hosted checkout page
// normally, auto-approving widgets against the demo backend.
func (a *app) checkout(cmd *cobra.Command) (payment.ScriptLoader, checkout.Factory) {
	if a.demo != nil {
		return fakeklub.ScriptLoader{}, a.demo.api.Checkout()
	}

	loader := checkout.NewLoader(a.cfg.Gateway.ScriptURL)
	launch := func(url string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "Open %s to complete the payment.\n", url)
		return checkout.LogLauncher(url)
	}
	return loader, checkout.HostedFactory(loader, launch)
}

func (a *app) purchase(cmd *cobra.Command, p payment.Purchase) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	navigated := make(chan string, 1)

	loader, widgets := a.checkout(cmd)
	o := payment.New(a.client, loader, widgets, a.notifier, payment.Options{
		Key:        a.cfg.Gateway.Key,
		Name:       a.cfg.Gateway.Name,
		ThemeColor: a.cfg.Gateway.ThemeColor,
		Profile: models.Profile{
			ID:      a.cfg.Profile.ID,
			Name:    a.cfg.Profile.Name,
			Email:   a.cfg.Profile.Email,
			Contact: a.cfg.Profile.Contact,
		},
		NavigateDelay: a.cfg.NavigateDelay(),
		Navigator: payment.NavigatorFunc(func(path string) {
			navigated <- path
		}),
		Refresh: payment.JoinRefresher(a.client, func(r payment.Refreshed) {
			fmt.Fprintf(out, "Joined %s with %d workspaces.\n", r.Community.Name, len(r.Workspaces))
		}),
		Publisher: a.publisher,
	})

	state, err := o.StartPurchase(ctx, p)
	switch state {
	case payment.Idle:
		if err == nil {
			fmt.Fprintln(out, "Checkout dismissed, nothing was charged.")
		}
	case payment.Succeeded:
		fmt.Fprintln(out, "Payment successful!")
		select {
		case path := <-navigated:
			fmt.Fprintf(out, "Continue at %s\n", path)
		case <-time.After(a.cfg.NavigateDelay() + navigationGrace):
			log.Warnf("[pay] no navigation after %s purchase", p.Flow)
		case <-ctx.Done():
		}
	case payment.Failed:
		fmt.Fprintln(out, "Payment failed.")
	}
	if err != nil {
		return err
	}
	return a.result()
}
