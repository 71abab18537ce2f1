package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/agentworkforce/homepage/internal/content"
	"github.com/agentworkforce/homepage/internal/contentsync"
	"github.com/spf13/cobra"
)

func newTestimonialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testimonials",
		Short: "List and edit testimonials",
	}
	cmd.AddCommand(
		newTestimonialsListCmd(opts),
		newTestimonialsAddCmd(opts),
		newTestimonialsFeatureCmd(opts),
		newTestimonialsDeleteCmd(opts),
	)
	return cmd
}

func loadBoard(cmd *cobra.Command, opts *rootOptions) (*contentsync.TestimonialBoard, error) {
	session, err := opts.session()
	if err != nil {
		return nil, err
	}
	board := contentsync.NewTestimonialBoard(session)
	if err := board.Refresh(cmd.Context()); err != nil {
		return nil, err
	}
	return board, nil
}

func newTestimonialsListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List testimonials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := loadBoard(cmd, opts)
			if err != nil {
				return err
			}
			items := board.Items()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), items)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFEATURED\tUPDATED")
			for _, item := range items {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", item.String("id"), item.String("name"), item.Bool("isFeatured"), item.String("updatedAt"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the merged items as JSON")
	return cmd
}

func newTestimonialsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		name     string
		role     string
		quote    string
		imageURL string
		featured bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a testimonial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := loadBoard(cmd, opts)
			if err != nil {
				return err
			}
			stored, err := board.Add(cmd.Context(), content.Document{
				"name":       strings.TrimSpace(name),
				"role":       strings.TrimSpace(role),
				"quote":      strings.TrimSpace(quote),
				"imageUrl":   strings.TrimSpace(imageURL),
				"isFeatured": featured,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stored)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "author name")
	cmd.Flags().StringVar(&role, "role", "", "author role")
	cmd.Flags().StringVar(&quote, "quote", "", "testimonial text")
	cmd.Flags().StringVar(&imageURL, "image-url", "", "author picture URL")
	cmd.Flags().BoolVar(&featured, "featured", false, "show on the homepage")
	return cmd
}

func newTestimonialsFeatureCmd(opts *rootOptions) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "feature <id>",
		Short: "Mark a testimonial as featured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := loadBoard(cmd, opts)
			if err != nil {
				return err
			}
			if err := board.SetFeatured(cmd.Context(), args[0], !off); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], board.State(args[0]))
			return err
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "remove the featured flag instead")
	return cmd
}

func newTestimonialsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a testimonial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := loadBoard(cmd, opts)
			if err != nil {
				return err
			}
			if err := board.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}
