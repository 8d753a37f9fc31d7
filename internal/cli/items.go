package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dukerupert/grocerylist/internal/model"
	"github.com/dukerupert/grocerylist/internal/store"
	"github.com/dukerupert/grocerylist/internal/viewstate"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("item not found")

func newListCommand(a *app) *cobra.Command {
	var (
		asJSON    bool
		pending   bool
		completed bool
		sections  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the list, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending && completed {
				return fmt.Errorf("--pending and --completed cannot be combined")
			}

			return a.withStore(cmd.Context(), func(gs *store.GroceryStore) error {
				items, err := gs.ListItems(cmd.Context())
				if err != nil {
					return err
				}
				mirror := viewstate.NewMirror(items)

				shown := mirror.Items()
				switch {
				case pending:
					shown = mirror.Pending()
				case completed:
					shown = mirror.Completed()
				}

				if asJSON {
					if sections {
						return printJSON(a.out, viewstate.NewMirror(shown).Sections())
					}
					return printJSON(a.out, shown)
				}

				fmt.Fprintln(a.out, mirror.Summary())
				if sections {
					for _, s := range viewstate.NewMirror(shown).Sections() {
						fmt.Fprintf(a.out, "\n%s\n", s.Name)
						printItems(a.out, s.Items)
					}
				} else {
					printItems(a.out, shown)
				}
				if footer := mirror.Footer(); footer != "" {
					fmt.Fprintf(a.out, "\n%s\n", footer)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print items as JSON")
	cmd.Flags().BoolVar(&pending, "pending", false, "Only items not yet completed")
	cmd.Flags().BoolVar(&completed, "completed", false, "Only completed items")
	cmd.Flags().BoolVar(&sections, "sections", false, "Group items by store section")
	return cmd
}

func printItems(w io.Writer, items []model.GroceryItem) {
	for _, it := range items {
		printItem(w, it)
	}
}

func printItem(w io.Writer, it model.GroceryItem) {
	mark := " "
	if it.Completed {
		mark = "x"
	}
	line := fmt.Sprintf("[%s] %4s  %s x%d", mark, it.ID, it.Name, it.Quantity)
	if it.Notes != "" {
		line += "  (" + it.Notes + ")"
	}
	fmt.Fprintln(w, line)
}

func newAddCommand(a *app) *cobra.Command {
	var (
		quantity int
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return a.withStore(cmd.Context(), func(gs *store.GroceryStore) error {
				item, err := gs.Add(cmd.Context(), name, model.NormalizeQuantity(quantity), notes)
				if errors.Is(err, store.ErrNameRequired) {
					return fmt.Errorf("please enter a grocery item")
				}
				if err != nil {
					return err
				}
				printItem(a.out, *item)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&quantity, "quantity", "q", model.DefaultQuantity, "How many")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Free-form notes")
	return cmd
}

func newToggleCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip an item between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(gs *store.GroceryStore) error {
				item, err := gs.ToggleCompletion(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("%w: %s", errNotFound, args[0])
				}
				printItem(a.out, *item)
				return nil
			})
		},
	}
}

func newUpdateCommand(a *app) *cobra.Command {
	var (
		quantity int
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an item's quantity and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(gs *store.GroceryStore) error {
				// Notes are replaced, so keep the current ones unless --notes was given.
				if !cmd.Flags().Changed("notes") {
					current, err := gs.Get(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if current == nil {
						return fmt.Errorf("%w: %s", errNotFound, args[0])
					}
					notes = current.Notes
				}

				item, err := gs.Update(cmd.Context(), args[0], model.NormalizeQuantity(quantity), notes)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("%w: %s", errNotFound, args[0])
				}
				printItem(a.out, *item)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&quantity, "quantity", "q", 0, "New quantity (required)")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "New notes")
	cmd.MarkFlagRequired("quantity")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(gs *store.GroceryStore) error {
				if _, err := gs.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				id, ok := store.CanonicalID(args[0])
				if !ok {
					id = args[0]
				}
				fmt.Fprintf(a.out, "deleted %s\n", id)
				return nil
			})
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clear removes every item; pass --yes to confirm")
			}
			return a.withStore(cmd.Context(), func(gs *store.GroceryStore) error {
				if err := gs.ClearAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "list cleared")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the list")
	return cmd
}
