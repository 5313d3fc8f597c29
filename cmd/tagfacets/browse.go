package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/tagfacets/internal/facet"
	"github.com/hurttlocker/tagfacets/internal/store"
)

func newBrowseCmd(opts *rootOptions) *cobra.Command {
	var (
		subtype   string
		subtree   int64
		page      int
		pageSize  int
		sortField string
		direction string
		facets    int
	)
	cmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "Show items and remaining facets for a tag path",
		Long: `Browse narrows items by the tags in path, a "/" or "," separated list of
tag slugs. A segment prefixed with "-" removes that tag. The output lists the
selected tags, the tags that still co-occur with the selection, and one page
of matching items.`,
		Example: `  tagfacets browse
  tagfacets browse sea/evening
  tagfacets browse sea/evening/-sea --subtype image --page 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			req := facet.BrowseRequest{
				Filter:     filterFor(subtype, subtree),
				Page:       a.settings.DefaultPage(),
				FacetLimit: facet.Limit(facets),
			}
			if len(args) == 1 {
				req.Path = args[0]
			}
			if page > 0 {
				req.Page.Page = page
			}
			if pageSize > 0 {
				req.Page.PageSize = pageSize
			}
			if sortField != "" {
				s, err := facet.ParseSort(sortField)
				if err != nil {
					return err
				}
				req.Page.Sort = s
			}
			if direction != "" {
				d, err := facet.ParseDirection(direction)
				if err != nil {
					return err
				}
				req.Page.Direction = d
			}

			view, err := a.engine.Browse(commandContext(cmd), req)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printView(cmd, view)
			return nil
		}),
	}
	cmd.Flags().StringVar(&subtype, "subtype", "", "restrict to a subtype")
	cmd.Flags().Int64Var(&subtree, "subtree", 0, "restrict to a document and its descendants")
	cmd.Flags().IntVar(&page, "page", 0, "page number (1-based)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "items per page")
	cmd.Flags().StringVar(&sortField, "sort", "", "sort field: created or title")
	cmd.Flags().StringVar(&direction, "direction", "", "sort direction: asc or desc")
	cmd.Flags().IntVar(&facets, "facets", 0, "maximum facets to list (-1 for all)")
	return cmd
}

func printView(cmd *cobra.Command, v *facet.View) {
	out := cmd.OutOrStdout()
	if len(v.Tags) == 0 {
		fmt.Fprintln(out, "Selected: (none)")
	} else {
		titles := make([]string, len(v.Tags))
		for i, t := range v.Tags {
			titles[i] = t.Title
		}
		fmt.Fprintf(out, "Selected: %s  [/%s]\n", strings.Join(titles, " + "), v.Path)
	}
	if v.Coincidence != nil && v.Coincidence.DeadEnd {
		fmt.Fprintln(out, "No items carry every selected tag.")
	}

	if len(v.Facets) > 0 {
		fmt.Fprintln(out, "\nFacets:")
		for _, f := range v.Facets {
			mark := " "
			if f.Selected {
				mark = "*"
			}
			fmt.Fprintf(out, " %s %-24s %5d  %s  %s\n", mark, f.Tag.Title, f.Count, strings.Repeat("#", f.Band), f.Path)
		}
	}

	if v.Page == nil {
		return
	}
	fmt.Fprintf(out, "\nItems (page %d of %d, %d total):\n", v.Page.Page, v.Page.TotalPages, v.Page.Total)
	printItems(cmd, v.Page.Items)
}

func newRelatedCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "related <item-id>",
		Short: "List items sharing the most tags with an item",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			related, err := a.engine.RelatedToID(commandContext(cmd), id, facet.Limit(limit))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), related)
			}
			out := cmd.OutOrStdout()
			if len(related) == 0 {
				fmt.Fprintln(out, "no related items")
				return nil
			}
			for _, r := range related {
				fmt.Fprintf(out, "%6d  shared %-3d  %s\n", r.Item.ID, r.Overlap, r.Item.Title)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum items (-1 for all)")
	return cmd
}

func newPopularCmd(opts *rootOptions) *cobra.Command {
	var (
		limit   int
		subtype string
	)
	cmd := &cobra.Command{
		Use:   "popular",
		Short: "List the most used tags",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := commandContext(cmd)
			var (
				counts []store.TagCount
				err    error
			)
			if f := filterFor(subtype, 0); f.IsZero() {
				counts, err = a.engine.MostPopular(ctx, facet.Limit(limit))
			} else {
				counts, err = a.engine.MostPopularIn(ctx, facet.Limit(limit), f)
			}
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), counts)
			}
			out := cmd.OutOrStdout()
			if len(counts) == 0 {
				fmt.Fprintln(out, "no tags")
				return nil
			}
			for _, c := range counts {
				fmt.Fprintf(out, "%5d  %s (%s)\n", c.Count, c.Tag.Title, c.Tag.Slug)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum tags (0 for the index default, -1 for all)")
	cmd.Flags().StringVar(&subtype, "subtype", "", "count only items of a subtype")
	return cmd
}

func newCloudCmd(opts *rootOptions) *cobra.Command {
	var (
		limit int
		bands int
	)
	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Show the tag cloud with weight bands",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			weighted, err := a.engine.Cloud(commandContext(cmd), facet.Limit(limit), bands)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), weighted)
			}
			out := cmd.OutOrStdout()
			for _, w := range weighted {
				fmt.Fprintf(out, "%d  %-24s %d\n", w.Band, w.Tag.Title, w.Count)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum tags (0 for the index default, -1 for all)")
	cmd.Flags().IntVar(&bands, "bands", 0, "number of weight bands")
	return cmd
}
