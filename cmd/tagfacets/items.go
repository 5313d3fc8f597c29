package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/tagfacets/internal/store"
)

func newItemCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Add, remove and inspect items",
	}
	cmd.AddCommand(newItemAddCmd(opts), newItemRmCmd(opts), newItemShowCmd(opts), newItemListCmd(opts))
	return cmd
}

func newItemAddCmd(opts *rootOptions) *cobra.Command {
	var (
		title   string
		subtype string
		parent  int64
		tags    string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item, optionally tagged",
		Example: `  tagfacets item add --title "Harbour at dusk" --subtype image --tags "sea, evening"
  tagfacets item add --title "Chapter 2" --parent 1`,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := commandContext(cmd)
			st, err := store.ParseSubtype(subtype)
			if err != nil {
				return err
			}
			it := &store.Item{Subtype: st, Title: strings.TrimSpace(title)}
			if parent > 0 {
				it.ParentID = &parent
			}
			id, err := a.store.AddItem(ctx, it)
			if err != nil {
				return err
			}
			created := 0
			if titles := splitList(tags); len(titles) > 0 {
				if created, err = a.store.TagItem(ctx, id, titles...); err != nil {
					return err
				}
				a.invalidate(ctx, created)
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), it)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added item %d (%s)\n", id, it.Subtype)
			return nil
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringVar(&subtype, "subtype", string(store.SubtypeDocument), "document, image, audio, video or other")
	cmd.Flags().Int64Var(&parent, "parent", 0, "parent document id")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	return cmd
}

func newItemRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <item-id>",
		Short: "Remove an item and its associations",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := commandContext(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteItem(ctx, id); err != nil {
				return err
			}
			a.invalidate(ctx, 1)
			fmt.Fprintf(cmd.OutOrStdout(), "removed item %d\n", id)
			return nil
		}),
	}
}

func newItemShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show an item and its tags",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := commandContext(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			it, err := a.store.GetItem(ctx, id)
			if err != nil {
				return err
			}
			if it == nil {
				return fmt.Errorf("item %d not found", id)
			}
			tags, err := a.store.TagsOf(ctx, id)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"item": it, "tags": tags})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d  %s  [%s]  %s\n", it.ID, it.Title, it.Subtype, it.CreatedAt.Format("2006-01-02 15:04"))
			slugs := make([]string, len(tags))
			for i, t := range tags {
				slugs[i] = t.Slug
			}
			fmt.Fprintf(out, "tags: %s\n", strings.Join(slugs, ", "))
			return nil
		}),
	}
}

func newItemListCmd(opts *rootOptions) *cobra.Command {
	var subtype string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			items, err := a.store.ListItems(commandContext(cmd), filterFor(subtype, 0))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), items)
			}
			printItems(cmd, items)
			return nil
		}),
	}
	cmd.Flags().StringVar(&subtype, "subtype", "", "restrict to a subtype")
	return cmd
}

func newTagCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "tag <item-id> <tag>...",
		Short:   "Attach tags to an item",
		Example: `  tagfacets tag 12 sea "late evening"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := commandContext(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			it, err := a.store.GetItem(ctx, id)
			if err != nil {
				return err
			}
			if it == nil {
				return fmt.Errorf("item %d not found", id)
			}
			created, err := a.store.TagItem(ctx, id, args[1:]...)
			if err != nil {
				return err
			}
			a.invalidate(ctx, created)
			fmt.Fprintf(cmd.OutOrStdout(), "item %d: %d new tag(s)\n", id, created)
			return nil
		}),
	}
}

func newUntagCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "untag <item-id> <tag>...",
		Short: "Remove tags from an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := commandContext(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			removed, err := a.store.UntagItem(ctx, id, args[1:]...)
			if err != nil {
				return err
			}
			a.invalidate(ctx, removed)
			fmt.Fprintf(cmd.OutOrStdout(), "item %d: %d tag(s) removed\n", id, removed)
			return nil
		}),
	}
}

func newPruneCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete tags no item carries",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			n, err := a.store.PruneOrphanTags(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d orphan tag(s)\n", n)
			return nil
		}),
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store counts",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			stats, err := a.store.Stats(commandContext(cmd))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "items:       %d\n", stats.ItemCount)
			fmt.Fprintf(out, "tags:        %d\n", stats.TagCount)
			fmt.Fprintf(out, "taggings:    %d\n", stats.TaggingCount)
			fmt.Fprintf(out, "orphan tags: %d\n", stats.OrphanTags)
			return nil
		}),
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// filterFor builds an item filter from flag values. An unknown subtype is
// kept verbatim and matches nothing.
func filterFor(subtype string, subtree int64) store.ItemFilter {
	var f store.ItemFilter
	if raw := strings.TrimSpace(subtype); raw != "" {
		st, err := store.ParseSubtype(raw)
		if err != nil {
			st = store.Subtype(strings.ToLower(raw))
		}
		f.Subtype = st
	}
	if subtree > 0 {
		f.SubtreeOf = &subtree
	}
	return f
}

func printItems(cmd *cobra.Command, items []*store.Item) {
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "no items")
		return
	}
	for _, it := range items {
		fmt.Fprintf(out, "%6d  %-8s  %s  %s\n", it.ID, it.Subtype, it.CreatedAt.Format("2006-01-02 15:04"), it.Title)
	}
}
