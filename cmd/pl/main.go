package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/generate"
	"planline/internal/hierarchy"
	"planline/internal/importer"
	"planline/internal/migrate"
	"planline/internal/notify"
	"planline/internal/repo"
	"planline/internal/server"
	"planline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline turns generated project plans into persisted, hierarchy-coded work items.
- Workspace: your .planline directory holding the database; planline.yml configures the server.
- Project: owns all imported requirements, epics, tasks and sprints.
- Import: reads a generation result (JSON) and persists it in dependency order,
  assigning hierarchy codes (CR-01, REQ-01.02, TE-EPIC-01, TE-042) as it goes.
- Event log: diary of changes, view with 'pl log tail'.`,
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
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(requirementCmd())
	rootCmd.AddCommand(epicCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc, workspaceID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			if id == "" {
				id = uuid.NewString()
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p := domain.Project{
					ID:          id,
					WorkspaceID: workspaceID,
					Name:        name,
					Code:        hierarchy.ProjectCode(name),
					Status:      domain.StatusActive,
					Description: desc,
					CreatedAt:   time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertProject(ctx, p); err != nil {
					return err
				}
				workspace := viper.GetString("workspace")
				if existing, err := config.LoadOptional(workspace); err == nil && existing == nil {
					if err := config.Default(p.ID, p.Name).Write(workspace); err != nil {
						return err
					}
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (random UUID if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&workspaceID, "workspace-id", "", "workspace id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Name", "Status", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Code, p.Name, p.Status, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				p, err := r.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func importCmd() *cobra.Command {
	var filePath string
	var cleanupOnFailure bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a generation result",
		Long: `Reads a generation result JSON file and persists its client requirements,
functional requirements, epics and tasks for the current project, assigning
hierarchy codes in dependency order. A store failure aborts the run and
leaves earlier records in place; --cleanup-on-failure deletes them instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			res, err := generate.Normalize(data)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				r := repo.Repo{Store: s}
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				project, err := r.GetProject(ctx, id)
				if err != nil {
					return err
				}
				log := logrus.New()
				imp := importer.New(s, log)
				sum, runErr := imp.Run(ctx, project, res)
				if runErr != nil {
					if cleanupOnFailure {
						if cerr := imp.Cleanup(ctx, sum); cerr != nil {
							log.WithError(cerr).Warn("cleanup incomplete")
						}
					}
					return runErr
				}
				ev := events.Writer{Store: s}
				if err := ev.Append(ctx, "import.completed", project.ID, "import", "", viper.GetString("actor-id"), events.EventPayload{
					"counts":   sum.Counts(),
					"warnings": len(sum.Warnings),
				}); err != nil {
					log.WithError(err).Warn("event append failed")
				}
				_ = notify.LogNotifier{Log: log}.ImportCompleted(ctx, project, sum)
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				printImportSummary(sum)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to generation result JSON")
	cmd.Flags().BoolVar(&cleanupOnFailure, "cleanup-on-failure", false, "delete created records if the run aborts")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printImportSummary(sum *importer.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Entity", "Code", "ID"})
	for _, ref := range sum.ClientRequirements {
		tw.AppendRow(table.Row{"client requirement", ref.HierarchyID, ref.ID})
	}
	for _, ref := range sum.FunctionalRequirements {
		tw.AppendRow(table.Row{"requirement", ref.HierarchyID, ref.ID})
	}
	for _, ref := range sum.Epics {
		tw.AppendRow(table.Row{"epic", ref.HierarchyID, ref.ID})
	}
	for _, ref := range sum.Tasks {
		tw.AppendRow(table.Row{"task", ref.HierarchyID, ref.ID})
	}
	tw.Render()
	for _, w := range sum.Warnings {
		fmt.Printf("warning: %s %s[%d] ref=%q\n", w.Kind, w.Entity, w.Index, w.Ref)
	}
}

func requirementCmd() *cobra.Command {
	req := &cobra.Command{Use: "requirement", Short: "Inspect functional requirements"}
	req.AddCommand(requirementListCmd())
	req.AddCommand(requirementTreeCmd())
	return req
}

func requirementListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List functional requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				items, err := r.ListRequirements(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Title", "Priority", "Status"})
				for _, fr := range items {
					tw.AppendRow(table.Row{fr.HierarchyID, fr.Title, fr.Priority, fr.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func requirementTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the requirement forest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				items, err := r.ListRequirements(ctx, id)
				if err != nil {
					return err
				}
				children := map[string][]domain.FunctionalRequirement{}
				var roots []domain.FunctionalRequirement
				for _, fr := range items {
					if fr.ParentID != nil {
						children[*fr.ParentID] = append(children[*fr.ParentID], fr)
					} else {
						roots = append(roots, fr)
					}
				}
				for i, fr := range roots {
					printRequirementTree(fr, children, "", i == len(roots)-1)
				}
				return nil
			})
		},
	}
	return cmd
}

func printRequirementTree(fr domain.FunctionalRequirement, children map[string][]domain.FunctionalRequirement, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s %s [%s]\n", prefix, connector, fr.HierarchyID, fr.Title, fr.Status)
	for i, c := range children[fr.ID] {
		printRequirementTree(c, children, newPrefix, i == len(children[fr.ID])-1)
	}
}

func epicCmd() *cobra.Command {
	epic := &cobra.Command{Use: "epic", Short: "Inspect epics"}
	epic.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List epics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				items, err := r.ListEpics(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Name", "Status", "Requirements"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.HierarchyID, e.Name, e.Status, len(e.RequirementIDs)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return epic
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	task.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				items, err := r.ListTasks(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Title", "Priority", "Status", "Epic"})
				for _, t := range items {
					epic := ""
					if t.EpicID != nil {
						epic = *t.EpicID
					}
					tw.AppendRow(table.Row{t.HierarchyID, t.Title, t.Priority, t.Status, epic})
				}
				tw.Render()
				return nil
			})
		},
	})
	return task
}

func sprintCmd() *cobra.Command {
	sprint := &cobra.Command{Use: "sprint", Short: "Manage sprints"}
	sprint.AddCommand(sprintCreateCmd())
	sprint.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				items, err := r.ListSprints(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return sprint
}

func sprintCreateCmd() *cobra.Command {
	var name, goal, startDate, endDate string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create sprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				p, err := r.GetProject(ctx, id)
				if err != nil {
					return err
				}
				existing, err := r.ListSprints(ctx, p.ID)
				if err != nil {
					return err
				}
				s := domain.Sprint{
					ID:        uuid.NewString(),
					ProjectID: p.ID,
					Code:      hierarchy.SprintCode(p.Code, len(existing)+1),
					Name:      name,
					Goal:      goal,
					Status:    domain.StatusPlanned,
					StartDate: startDate,
					EndDate:   endDate,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertSprint(ctx, s); err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "sprint name")
	cmd.Flags().StringVar(&goal, "goal", "", "sprint goal")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveProject(ctx, r)
				if err != nil {
					return err
				}
				items, err := r.ListEvents(ctx, id)
				if err != nil {
					return err
				}
				if len(items) > n {
					items = items[len(items)-n:]
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			s := store.NewSQLite(conn)
			log := logrus.New()
			var auth server.AuthConfig
			var notifier notify.Notifier = notify.LogNotifier{Log: log}
			if cfg != nil {
				auth = server.AuthConfig{
					JWTSecret:      cfg.Auth.JWTSecret,
					APIKeys:        cfg.Auth.APIKeys,
					AllowDevTokens: cfg.Auth.AllowDevTokens,
				}
				if cfg.Server.Addr != "" && !cmd.Flags().Changed("addr") {
					addr = cfg.Server.Addr
				}
				if cfg.Server.BasePath != "" && !cmd.Flags().Changed("base-path") {
					basePath = cfg.Server.BasePath
				}
				if cfg.Notify.Mode == "none" {
					notifier = notify.Noop{}
				}
			}
			if secret := os.Getenv("PLANLINE_JWT_SECRET"); secret != "" {
				auth.JWTSecret = secret
			}
			handler, err := server.New(server.Config{
				Repo:     repo.Repo{Store: s},
				Importer: importer.New(s, log),
				Events:   events.Writer{Store: s},
				Notifier: notifier,
				BasePath: basePath,
				Auth:     auth,
				Log:      log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Planline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, store.NewSQLite(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withStore(ctx, func(ctx context.Context, s store.Store) error {
		return fn(ctx, repo.Repo{Store: s})
	})
}

// resolveProject picks the target project: --project flag first, then the
// workspace config, then a sole existing project.
func resolveProject(ctx context.Context, r repo.Repo) (string, error) {
	if id := strings.TrimSpace(viper.GetString("project")); id != "" {
		return id, nil
	}
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return "", err
	}
	if cfg != nil && cfg.Project.ID != "" {
		return cfg.Project.ID, nil
	}
	items, err := r.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 1 {
		return items[0].ID, nil
	}
	return "", fmt.Errorf("project not specified; use --project or set project.id in planline.yml")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
