package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"alertline/internal/config"
	"alertline/internal/db"
	"alertline/internal/domain"
	"alertline/internal/engine"
	"alertline/internal/migrate"
	"alertline/internal/repo"
	"alertline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Alertline CLI",
	Long: `Alertline stores notification configurations per container and delivers
crash/report notifications through work-item trackers, issue trackers and chat
webhooks. Template fields support an embedded template syntax; 'al templates
migrate' rewrites legacy-syntax templates to the target syntax.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ALERTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withEngine(ctx context.Context, fn func(ctx context.Context, e engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, nil))
}

func notificationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notification", Short: "Manage notification configs"}
	cmd.AddCommand(notificationCreateCmd())
	cmd.AddCommand(notificationListCmd())
	cmd.AddCommand(notificationShowCmd())
	cmd.AddCommand(notificationDeleteCmd())
	return cmd
}

func notificationCreateCmd() *cobra.Command {
	var container, file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a notification config from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var cfg domain.Config
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.CreateNotification(ctx, engine.CreateNotificationOptions{
					Container: container,
					Config:    cfg,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printNotification(n)
			})
		},
	}
	cmd.Flags().StringVar(&container, "container", "", "owning container")
	cmd.Flags().StringVar(&file, "file", "", "path to config JSON")
	_ = cmd.MarkFlagRequired("container")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func notificationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notification configs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListNotifications(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Container", "Kind", "Updated"})
				for _, n := range items {
					t.AppendRow(table.Row{n.ID, n.Container, n.Config.Kind(), n.UpdatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
}

func notificationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one notification config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.GetNotification(ctx, args[0])
				if err != nil {
					return err
				}
				return printNotification(n)
			})
		},
	}
}

func notificationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteNotification(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "templates", Short: "Template maintenance"}
	cmd.AddCommand(templatesMigrateCmd())
	return cmd
}

func templatesMigrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite legacy-syntax templates to target syntax",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.MigrateTemplates(ctx, dryRun, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if dryRun {
					fmt.Printf("would update %d notification(s)\n", len(res.NotificationIDsToUpdate))
					for _, id := range res.NotificationIDsToUpdate {
						fmt.Println("  ", id)
					}
					return nil
				}
				fmt.Printf("updated %d, failed %d\n", len(res.UpdatedNotificationIDs), len(res.FailedNotificationIDs))
				for _, id := range res.FailedNotificationIDs {
					fmt.Println("  failed:", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Instance configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show instance config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg, err := e.InstanceConfig(ctx)
				if err != nil {
					return err
				}
				out, err := cfg.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			})
		},
	})
	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import instance config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SaveInstanceConfig(ctx, cfg, viper.GetString("actor-id"))
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "alertline.yml", "config file path")
	cmd.AddCommand(importCmd)
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actor, name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the secret once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Println(secret)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&actor, "actor-id", "", "actor the key authenticates as")
	createCmd.Flags().StringVar(&name, "name", "", "key label")
	_ = createCmd.MarkFlagRequired("actor-id")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					t.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Audit log"}
	var limit int
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Show latest audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, limit, "", "", "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, e := range items {
					t.AppendRow(table.Row{e.TS, e.Type, e.EntityID, e.ActorID})
				}
				t.Render()
				return nil
			})
		},
	}
	tailCmd.Flags().IntVar(&limit, "limit", 50, "max events")
	cmd.AddCommand(tailCmd)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, jwtSecret string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if jwtSecret == "" {
					jwtSecret = viper.GetString("jwt-secret")
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: jwtSecret},
				})
				if err != nil {
					return err
				}
				fmt.Printf("alertline listening on %s (base path %s)\n", addr, basePath)
				return http.ListenAndServe(addr, handler)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func printNotification(n domain.NotificationRecord) error {
	if viper.GetBool("json") {
		return printJSON(n)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendRow(table.Row{"ID", n.ID})
	t.AppendRow(table.Row{"Container", n.Container})
	t.AppendRow(table.Row{"Kind", n.Config.Kind()})
	t.AppendRow(table.Row{"Version", n.Version})
	t.AppendRow(table.Row{"Updated", n.UpdatedAt})
	t.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
