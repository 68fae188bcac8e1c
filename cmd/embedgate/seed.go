package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/embedgate/embedgate/internal/agent"
	"github.com/embedgate/embedgate/internal/config"
	"github.com/embedgate/embedgate/internal/token"
	"github.com/embedgate/embedgate/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo workspace, agent and embed token",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	userStore := user.NewStore(pool)
	agentStore := agent.NewStore(pool)
	tokenStore := token.NewStore(pool)
	tokenStore.SetDefaults(cfg.Embed.DefaultRateLimit, cfg.Embed.DefaultMonthlyQuota)

	const demoEmail = "demo@embedgate.dev"
	if _, err := userStore.GetByEmail(ctx, demoEmail); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	u, err := userStore.Create(ctx, user.CreateUserInput{
		Email:    demoEmail,
		Password: "demo-password",
		Name:     "Demo Workspace",
	})
	if err != nil {
		return fmt.Errorf("creating demo user: %w", err)
	}

	ag, err := agentStore.Create(ctx, agent.CreateAgentInput{
		WorkspaceID:  u.ID,
		Name:         "Demo Support Bot",
		Description:  "Answers questions about the demo knowledge base",
		SourceKind:   "pdf",
		SystemPrompt: "You are a friendly support assistant.",
		TopK:         3,
	})
	if err != nil {
		return fmt.Errorf("creating demo agent: %w", err)
	}

	tok, err := tokenStore.Create(ctx, token.CreateTokenInput{
		AgentKey:    ag.Key,
		WorkspaceID: u.ID,
	})
	if err != nil {
		return fmt.Errorf("creating demo embed token: %w", err)
	}

	// Mirror the token onto the agent row so the legacy admission path works
	// out of the box.
	if err := agentStore.SetLegacyEmbedToken(ctx, ag.Key, &tok.PublicToken); err != nil {
		return fmt.Errorf("mirroring demo embed token: %w", err)
	}

	slog.Info("seeded demo workspace", "user_id", u.ID, "agent_key", ag.Key)
	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Login:       %s / demo-password\n", demoEmail)
	fmt.Printf("Agent:       %s (%s)\n", ag.Name, ag.Key)
	fmt.Printf("Embed token: %s\n", tok.PublicToken)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl http://localhost:8080/v1/embed/%s/info\n", tok.PublicToken)
	fmt.Printf("  <script src=\"http://localhost:8080/widget.js\" data-token=\"%s\"></script>\n", tok.PublicToken)

	return nil
}
