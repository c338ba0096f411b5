package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkm/backend/internal/query"
	"pkm/backend/internal/schema"
)

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <prefix>",
		Short: "Open the first note whose key starts with prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			o := newOpener(a.baseDir(), a.cfg.OpenCommand)
			return query.NewResolver(store).Open(cmd.Context(), args[0], o)
		},
	}
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <key>",
		Short: "Print the locator of a note or alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			locator, err := query.NewResolver(store).Resolve(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), locator)
			return nil
		},
	}
}

func newCompleteCmd(a *app) *cobra.Command {
	var sorted bool
	cmd := &cobra.Command{
		Use:   "complete [prefix]",
		Short: "List note keys starting with prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			r := query.NewResolver(store)
			out := cmd.OutOrStdout()
			if sorted {
				for _, key := range r.SortedAutocomplete(prefix) {
					fmt.Fprintln(out, key)
				}
				return nil
			}
			for key := range r.Autocomplete(prefix) {
				fmt.Fprintln(out, key)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sorted, "sorted", false, "Sort matches instead of using declaration order")
	return cmd
}

func newTaggedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tagged <tag>",
		Short: "List notes carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			for _, key := range query.NewResolver(store).NotesWithTag(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func newFieldCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "field <note> <tag> [field]",
		Short: "Print typed attribute values of a note",
		Long: `Print the value bound to field by the note's attribute values for tag.
Without a field name every field of the tag schema is printed.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 3 {
				value, err := schema.FieldValue(store, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, value)
				return nil
			}

			fields, err := schema.Fields(store, args[0], args[1])
			if err != nil {
				return err
			}
			for _, f := range fields {
				fmt.Fprintf(out, "%s: %s\n", f.Name, f.Value)
			}
			return nil
		},
	}
}
