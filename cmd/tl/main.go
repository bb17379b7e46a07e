package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"trackline/internal/app"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/migrate"
	"trackline/internal/notify"
	"trackline/internal/repo"
	"trackline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Trackline CLI",
	Long: `Trackline tracks deliverable work units across client programs and keeps
attention where it is needed: evidence must be approved before a unit counts
as done, deadlines escalate automatically as they approach, and every viewer
gets a ranked attention queue instead of a wall of status reports.`,
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
	viper.SetEnvPrefix("TRACKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "path to trackline.yml")
	rootCmd.PersistentFlags().String("org", "", "organization id (overrides config)")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting user id")
	rootCmd.PersistentFlags().String("actor-email", "", "acting user email")
	rootCmd.PersistentFlags().String("role", "platform_admin", "acting role")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-email", rootCmd.PersistentFlags().Lookup("actor-email"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(evidenceCmd())
	rootCmd.AddCommand(escalationCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
}

// principal builds the acting identity for local CLI calls. The CLI trusts
// its operator; the HTTP API is where credentials are verified.
func principal(orgID string) domain.Principal {
	role := domain.Role(viper.GetString("role"))
	return domain.Principal{
		UserID: viper.GetString("actor-id"),
		Email:  viper.GetString("actor-email"),
		Role:   role,
		OrgID:  orgID,
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	orgID, cfg, err := app.ResolveOrgAndConfig(ctx, workspace, viper.GetString("config"), viper.GetString("org"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e, orgID)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- org ---

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgSeedCmd())
	org.AddCommand(orgListCmd())
	return org
}

func orgSeedCmd() *cobra.Command {
	var orgID, orgName, clientName, programName, workstreamName string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision an organization with one client, program and workstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return fmt.Errorf("--id required")
			}
			viper.Set("org", orgID)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				opts := engine.SeedOptions{
					OrgID:          orgID,
					OrgName:        orgName,
					ClientID:       orgID + "-client",
					ClientName:     clientName,
					ProgramID:      orgID + "-program",
					ProgramName:    programName,
					WorkstreamID:   orgID + "-ws",
					WorkstreamName: workstreamName,
				}
				if err := e.Seed(ctx, opts); err != nil {
					return err
				}
				fmt.Printf("seeded org %s (workstream %s)\n", orgID, opts.WorkstreamID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "id", "", "organization id")
	cmd.Flags().StringVar(&orgName, "name", "", "organization name")
	cmd.Flags().StringVar(&clientName, "client", "Default Client", "client name")
	cmd.Flags().StringVar(&programName, "program", "Default Program", "program name")
	cmd.Flags().StringVar(&workstreamName, "workstream", "Default Workstream", "workstream name")
	return cmd
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				orgs, err := e.Repo.ListOrganizations(ctx)
				if err != nil {
					return err
				}
				return printJSON(orgs)
			})
		},
	}
}

// --- actor ---

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Inspect actors"}
	actor.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List actors in the organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				actors, err := e.Repo.ListActors(ctx, orgID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Role"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.Email, a.Role})
				}
				tw.Render()
				return nil
			})
		},
	})
	return actor
}

// --- unit ---

func unitCmd() *cobra.Command {
	unit := &cobra.Command{Use: "unit", Short: "Manage work units"}
	unit.AddCommand(unitCreateCmd())
	unit.AddCommand(unitListCmd())
	unit.AddCommand(unitShowCmd())
	unit.AddCommand(unitConfirmCmd())
	unit.AddCommand(unitArchiveCmd())
	unit.AddCommand(unitUnblockCmd())
	return unit
}

func unitCreateCmd() *cobra.Command {
	var workstream, title, description, deadline, policy string
	var critical bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				u, err := e.CreateUnit(ctx, principal(orgID), engine.CreateUnitOptions{
					WorkstreamID:       workstream,
					Title:              title,
					Description:        description,
					Deadline:           deadline,
					HighCriticality:    critical,
					EvidencePolicyJSON: policy,
				})
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&workstream, "workstream", "", "workstream id")
	cmd.Flags().StringVar(&title, "title", "", "unit title")
	cmd.Flags().StringVar(&description, "description", "", "unit description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().StringVar(&policy, "evidence-policy", "", `evidence policy JSON, e.g. {"types":["photo"],"min_count":1}`)
	cmd.Flags().BoolVar(&critical, "high-criticality", false, "require owner-level evidence decisions")
	_ = cmd.MarkFlagRequired("workstream")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func unitListCmd() *cobra.Command {
	var workstream, status string
	var unconfirmed bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				units, err := e.ListUnits(ctx, principal(orgID), repo.UnitFilters{
					WorkstreamID: workstream,
					Status:       status,
					Unconfirmed:  unconfirmed,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(units)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Level", "Deadline", "Confirmed"})
				for _, u := range units {
					deadline := ""
					if u.Deadline != nil {
						deadline = *u.Deadline
					}
					tw.AppendRow(table.Row{u.ID, u.Title, u.ComputedStatus, u.EscalationLevel, deadline, u.IsConfirmed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workstream, "workstream", "", "filter by workstream")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (GREEN|RED|BLOCKED)")
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "only unconfirmed units")
	return cmd
}

func unitShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show <unit-id>",
		Aliases: []string{"get"},
		Short:   "Show one unit with its evidence",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				p := principal(orgID)
				u, err := e.GetUnit(ctx, p, args[0])
				if err != nil {
					return err
				}
				evidence, err := e.ListUnitEvidence(ctx, p, u.ID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"unit": u, "evidence": evidence})
			})
		},
	}
	return cmd
}

func unitConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <unit-id>",
		Short: "Confirm a contributor-created unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				u, err := e.ConfirmUnit(ctx, principal(orgID), args[0])
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
}

func unitArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <unit-id>",
		Short: "Archive a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				u, err := e.ArchiveUnit(ctx, principal(orgID), args[0])
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
}

func unitUnblockCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "unblock <unit-id>",
		Short: "Lift a confirmed block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				u, err := e.Unblock(ctx, principal(orgID), args[0], reason)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the block is lifted")
	return cmd
}

// --- evidence ---

func evidenceCmd() *cobra.Command {
	ev := &cobra.Command{Use: "evidence", Short: "Submit and decide evidence"}
	ev.AddCommand(evidenceSubmitCmd())
	ev.AddCommand(evidenceDecideCmd())
	return ev
}

func evidenceSubmitCmd() *cobra.Command {
	var unitID, evType, blobPath string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit evidence for a unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				ev, err := e.SubmitEvidence(ctx, principal(orgID), engine.SubmitEvidenceOptions{
					UnitID:   unitID,
					Type:     evType,
					BlobPath: blobPath,
				})
				if err != nil {
					return err
				}
				return printJSON(ev)
			})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "unit id")
	cmd.Flags().StringVar(&evType, "type", "photo", "evidence type (photo|document|certificate|note)")
	cmd.Flags().StringVar(&blobPath, "blob", "", "uploaded blob path")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func evidenceDecideCmd() *cobra.Command {
	var action, reason string
	cmd := &cobra.Command{
		Use:   "decide <evidence-id>",
		Short: "Approve or reject evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				ev, err := e.DecideEvidence(ctx, principal(orgID), args[0], action, reason)
				if err != nil {
					return err
				}
				return printJSON(ev)
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "approve or reject")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

// --- escalation ---

func escalationCmd() *cobra.Command {
	es := &cobra.Command{Use: "escalation", Short: "Manual escalation governance"}
	es.AddCommand(escalationRaiseCmd())
	es.AddCommand(escalationResolveCmd())
	es.AddCommand(escalationListCmd())
	return es
}

func escalationRaiseCmd() *cobra.Command {
	var unitID, reason, blockReason string
	var markBlocked bool
	cmd := &cobra.Command{
		Use:   "raise",
		Short: "Manually escalate a unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				es, err := e.ManualEscalate(ctx, principal(orgID), engine.ManualEscalateOptions{
					UnitID:      unitID,
					Reason:      reason,
					MarkBlocked: markBlocked,
					BlockReason: blockReason,
				})
				if err != nil {
					return err
				}
				return printJSON(es)
			})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "unit id")
	cmd.Flags().StringVar(&reason, "reason", "", "why attention is needed")
	cmd.Flags().BoolVar(&markBlocked, "block", false, "also block the unit (or propose, below lead)")
	cmd.Flags().StringVar(&blockReason, "block-reason", "", "block reason")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func escalationResolveCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "resolve <escalation-id>",
		Short: "Resolve an active escalation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				es, err := e.ResolveEscalation(ctx, principal(orgID), args[0], note)
				if err != nil {
					return err
				}
				return printJSON(es)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	return cmd
}

func escalationListCmd() *cobra.Command {
	var unitID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List escalations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				escalations, err := e.Repo.ListEscalations(ctx, repo.EscalationFilters{
					UnitID: unitID,
					OrgID:  orgID,
					Status: status,
				})
				if err != nil {
					return err
				}
				return printJSON(escalations)
			})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "filter by unit")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|resolved)")
	return cmd
}

// --- queue ---

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the attention queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				res, err := e.AttentionQueue(ctx, principal(orgID), time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Score", "Class", "Unit", "Status", "Summary"})
				for _, it := range res.Items {
					tw.AppendRow(table.Row{it.Score, it.Class, it.UnitTitle, it.Status, it.Summary})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- sweep ---

func sweepCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				now := time.Now()
				if at != "" {
					parsed, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return fmt.Errorf("--at must be RFC3339: %w", err)
					}
					now = parsed
				}
				report, err := e.RunSweep(ctx, now)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "sweep clock override (RFC3339, for replaying)")
	return cmd
}

// --- apikey ---

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyRevokeCmd())
	return ak
}

func apikeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				if _, err := e.Repo.GetActor(ctx, actorID); err != nil {
					return fmt.Errorf("actor %s: %w", actorID, err)
				}
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				key := "tl_" + hex.EncodeToString(raw)
				now := time.Now().UTC().Format(time.RFC3339)
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.InsertAPIKey(ctx, tx, domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: now,
				}); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				// the raw key is shown exactly once
				fmt.Println(key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ string) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSON(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	var limit int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				events, err := e.Repo.LatestEvents(ctx, limit, orgID, "", entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max events")
	cmd.Flags().StringVar(&entityKind, "kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity", "", "filter by entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and notification dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveOrgAndConfig(cmd.Context(), workspace, viper.GetString("config"), viper.GetString("org"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			jwtSecret := os.Getenv("TRACKLINE_JWT_SECRET")
			if jwtSecret == "" {
				return fmt.Errorf("TRACKLINE_JWT_SECRET is required for bearer auth")
			}
			sweepSecret := os.Getenv("TRACKLINE_SWEEP_SECRET")
			if sweepSecret == "" {
				sweepSecret = cfg.Sweep.Secret
			}
			if sweepSecret == "" {
				logger.Warn("no sweep secret configured; POST /sweep will reject all calls")
			}

			handler, err := server.New(server.Config{
				Engine:         e,
				BasePath:       basePath,
				Auth:           server.AuthConfig{JWTSecret: jwtSecret, Logger: logger},
				SweepSecret:    sweepSecret,
				EnableDevLogin: devLogin,
			})
			if err != nil {
				return err
			}

			sender := notify.Sender(notify.NopSender{})
			if cfg.Mail.Enabled {
				sender = notify.NewSMTPSender(cfg.Mail, logger)
			}
			dispatcher := notify.NewDispatcher(e, sender, logger)
			go dispatcher.Run(cmd.Context())

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving Trackline API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Bool("mail_enabled", cfg.Mail.Enabled))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login (dev only)")
	return cmd
}
