package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/pm/internal/adapters/cli"
	"github.com/example/pm/internal/models"
	"github.com/example/pm/internal/wire"
)

// EntityCmd builds the "pm <entity>" command group for schema. Every entity
// gets the same subcommands; the schema decides fields and endpoints.
func EntityCmd(schema *models.Schema) *cobra.Command {
	noun := strings.ToLower(schema.Name)
	cmd := &cobra.Command{
		Use:   schema.Command,
		Short: fmt.Sprintf("Manage %ss", noun),
		Long:  fmt.Sprintf("List, filter, create, edit and delete %s records on the backend (/api/%s).\n\nFields: %s", noun, schema.Resource, fieldHelp(schema)),
	}

	cmd.AddCommand(entityListCmd(schema))
	cmd.AddCommand(entityShowCmd(schema))
	cmd.AddCommand(entityCreateCmd(schema))
	cmd.AddCommand(entityEditCmd(schema))
	cmd.AddCommand(entityDeleteCmd(schema))
	cmd.AddCommand(entityWatchCmd(schema))
	return cmd
}

func entityListCmd(schema *models.Schema) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s records", strings.ToLower(schema.Name)),
		Example: fmt.Sprintf(`  pm %s list --filter %s~web --all
  pm %s list --sort %s --desc`, schema.Command, schema.TitleField, schema.Command, schema.TitleField),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := listOptions(cmd, schema)
			if err != nil {
				return err
			}
			adapter, err := wire.CollectionAdapterWithOutput(schema, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return adapter.List(cmd.Context(), opts)
		},
	}
	addViewFlags(cmd, schema)
	cmd.Flags().Bool("all", false, "Show every matching record instead of the first page")
	cmd.Flags().Int("limit", 0, "Page size (default from config)")
	cmd.Flags().Bool("offline", false, "Read the local mirror instead of the backend")
	cmd.Flags().String("sort", "", "Sort by field")
	cmd.Flags().Bool("desc", false, "Sort descending")
	return cmd
}

func entityShowCmd(schema *models.Schema) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: fmt.Sprintf("Show one %s", strings.ToLower(schema.Name)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := wire.CollectionAdapterWithOutput(schema, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = adapter.Show(cmd.Context(), args[0])
			return err
		},
	}
}

func entityCreateCmd(schema *models.Schema) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: fmt.Sprintf("Create a %s", strings.ToLower(schema.Name)),
		Long:  fmt.Sprintf("Create a %s from --set field=value pairs.\nDates are yyyy-mm-dd; id lists are comma-separated.\n\nFields: %s", strings.ToLower(schema.Name), fieldHelp(schema)),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, _ := cmd.Flags().GetStringArray("set")
			adapter, err := wire.CollectionAdapterWithOutput(schema, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = adapter.Create(cmd.Context(), sets)
			return err
		},
	}
	cmd.Flags().StringArray("set", nil, "field=value (repeatable)")
	return cmd
}

func entityEditCmd(schema *models.Schema) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: fmt.Sprintf("Edit a %s", strings.ToLower(schema.Name)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, _ := cmd.Flags().GetStringArray("set")
			adapter, err := wire.CollectionAdapterWithOutput(schema, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			_, err = adapter.Edit(cmd.Context(), args[0], sets)
			return err
		},
	}
	cmd.Flags().StringArray("set", nil, "field=value (repeatable)")
	return cmd
}

func entityDeleteCmd(schema *models.Schema) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: fmt.Sprintf("Delete a %s", strings.ToLower(schema.Name)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := wire.CollectionAdapterWithOutput(schema, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return adapter.Delete(cmd.Context(), args[0])
		},
	}
}

func entityWatchCmd(schema *models.Schema) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: fmt.Sprintf("Keep a %s list on screen, refreshed in the background", strings.ToLower(schema.Name)),
		Long:  "Refresh on the configured interval until interrupted or signed out elsewhere.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := listOptions(cmd, schema)
			if err != nil {
				return err
			}
			return watch(cmd, schema, opts)
		},
	}
	addViewFlags(cmd, schema)
	cmd.Flags().Bool("all", false, "Show every matching record instead of the first page")
	return cmd
}

func watch(cmd *cobra.Command, schema *models.Schema, opts cliadapter.ListOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	adapter, err := wire.CollectionAdapterWithOutput(schema, out)
	if err != nil {
		return err
	}
	screen, err := wire.Screen(schema)
	if err != nil {
		return err
	}
	sessions, err := wire.Sessions()
	if err != nil {
		return err
	}
	if err := adapter.List(ctx, opts); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Signing out in another terminal ends the watch.
		_ = sessions.Watch(ctx, func() {
			if _, err := sessions.Current(ctx); err != nil {
				cancel()
			}
		})
	}()

	if err := screen.Mount(ctx, func(err error) {
		if err != nil {
			return
		}
		fmt.Fprintf(out, "\n── %s · %s ──\n", schema.Name, time.Now().Format("15:04:05"))
		adapter.Render()
	}); err != nil {
		return err
	}
	defer screen.Unmount()

	<-ctx.Done()
	if _, err := sessions.Current(context.Background()); err != nil {
		return fmt.Errorf("signed out; run `pm login` to sign in again")
	}
	return nil
}

func addViewFlags(cmd *cobra.Command, schema *models.Schema) {
	cmd.Flags().StringArray("filter", nil, "Filter expression: field~text, field=text, field#=n, field>=date, field<=date, field@id (repeatable)")
	if schema.AssigneeField != "" {
		cmd.Flags().Bool("mine", false, "Only records assigned to you (default for developers)")
	}
}

// listOptions reads view flags. Developers see their own records unless
// --mine=false is given.
func listOptions(cmd *cobra.Command, schema *models.Schema) (cliadapter.ListOptions, error) {
	var opts cliadapter.ListOptions
	opts.Filters, _ = cmd.Flags().GetStringArray("filter")
	opts.All, _ = cmd.Flags().GetBool("all")
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.Offline, _ = cmd.Flags().GetBool("offline")
	opts.Sort, _ = cmd.Flags().GetString("sort")
	opts.Desc, _ = cmd.Flags().GetBool("desc")

	if schema.AssigneeField == "" {
		return opts, nil
	}
	if cmd.Flags().Changed("mine") {
		opts.Mine, _ = cmd.Flags().GetBool("mine")
		return opts, nil
	}
	sessions, err := wire.Sessions()
	if err != nil {
		return opts, err
	}
	if sess, err := sessions.Current(cmd.Context()); err == nil {
		opts.Mine = defaultMine(sess.Role)
	}
	return opts, nil
}

func defaultMine(role models.Role) bool {
	return role == models.RoleDeveloper
}

func fieldHelp(schema *models.Schema) string {
	parts := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		p := f.Name + " (" + f.Type.String()
		if f.Required {
			p += ", required"
		}
		if f.ReadOnly {
			p += ", read-only"
		}
		if len(f.Options) > 0 {
			p += ": " + strings.Join(f.Options, "|")
		}
		parts = append(parts, p+")")
	}
	return strings.Join(parts, ", ")
}
