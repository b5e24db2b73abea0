package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/prepgen/internal/config"
	"github.com/kalambet/prepgen/internal/mcpserver"
	"github.com/kalambet/prepgen/internal/notify"
)

// --- auth ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the bearer token issued by the web sign-in",
	Long: `Store the bearer token issued by the web sign-in.

Sign in through the browser, copy the access token and run:
  prepgen login --token <token>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			return fmt.Errorf("--token is required")
		}
		if err := config.NewKeychain().SetToken(token); err != nil {
			return err
		}
		printSuccess("Logged in")
		if exp, ok := config.TokenExpiry(token); ok {
			printStatus("Expires", "%s", exp.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("token", "", "access token")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		return a.orch.Logout()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend, AI service and credential status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(notify.Discard)
		if err != nil {
			return err
		}
		printStatus("Backend", "%s", a.cfg.API.BaseURL)
		if a.gate.Probe(cmd.Context()).Online {
			printStatus("AI service", "%s", colorize(colorGreen, "online"))
		} else {
			printStatus("AI service", "%s", colorize(colorRed, "offline"))
		}

		token, err := config.NewKeychain().Token()
		if err != nil {
			printStatus("Credential", "none (run 'prepgen login --token <token>')")
			return nil
		}
		exp, ok := config.TokenExpiry(token)
		switch {
		case !ok:
			printStatus("Credential", "stored")
		case time.Now().After(exp):
			printStatus("Credential", "%s", colorize(colorYellow, "expired at "+exp.Local().Format(time.RFC1123)))
		default:
			printStatus("Credential", "valid until %s", exp.Local().Format(time.RFC1123))
		}

		if p, err := a.orch.Profile(cmd.Context()); err == nil {
			printStatus("Signed in as", "%s <%s>", p.FullName, p.Email)
		}
		return nil
	},
}

// --- content ---

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage uploaded study materials",
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded materials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		materials, err := a.orch.ListMaterials(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(materials) == 0 {
			fmt.Fprintln(out, "No materials uploaded yet.")
			return nil
		}
		for _, m := range materials {
			fmt.Fprintf(out, "%s  %s  %s\n", colorize(colorCyan, m.ID), m.CreatedAt, m.Filename)
		}
		return nil
	},
}

var contentUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a PDF, DOCX or PPTX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		m, err := a.orch.UploadDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.ID)
		return nil
	},
}

var contentDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an uploaded material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		return a.orch.DeleteMaterial(cmd.Context(), args[0])
	},
}

func init() {
	contentCmd.AddCommand(contentListCmd)
	contentCmd.AddCommand(contentUploadCmd)
	contentCmd.AddCommand(contentDeleteCmd)
}

// --- summaries and chat ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize <content-id>",
	Short: "Summarize an uploaded material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		turn, err := a.orch.Summarize(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), a.renderer.Turn(turn))

		if withChat, _ := cmd.Flags().GetBool("chat"); withChat {
			return runChatLoop(cmd.Context(), a.orch, a.renderer, cmd.InOrStdin(), cmd.OutOrStdout())
		}
		return nil
	},
}

var youtubeCmd = &cobra.Command{
	Use:   "youtube <url>",
	Short: "Summarize a YouTube video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		turn, err := a.orch.SummarizeVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), a.renderer.Turn(turn))

		if withChat, _ := cmd.Flags().GetBool("chat"); withChat {
			return runChatLoop(cmd.Context(), a.orch, a.renderer, cmd.InOrStdin(), cmd.OutOrStdout())
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <content-id>",
	Short: "Summarize a material, then ask follow-up questions about it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		turn, err := a.orch.Summarize(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), a.renderer.Turn(turn))
		return runChatLoop(cmd.Context(), a.orch, a.renderer, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	summarizeCmd.Flags().Bool("chat", false, "ask follow-up questions after the summary")
	youtubeCmd.Flags().Bool("chat", false, "ask follow-up questions after the summary")
}

// --- quiz ---

var quizCmd = &cobra.Command{
	Use:   "quiz <content-id>",
	Short: "Take a multiple-choice quiz on an uploaded material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		defer a.orch.Wait()

		name, _ := cmd.Flags().GetString("name")
		if _, err := a.orch.GenerateQuiz(cmd.Context(), args[0], name); err != nil {
			return err
		}
		res, err := runQuizLoop(cmd.Context(), a.orch, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if res != nil {
			printResult(cmd.OutOrStdout(), res)
		}
		return nil
	},
}

func init() {
	quizCmd.Flags().String("name", "", "label for the quiz (default: the content id)")
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List saved quiz scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		results, err := a.orch.QuizHistory(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No quiz results yet.")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(out, "%s  %d/%d (%d%%)\n", r.CreatedAt, r.Score, r.TotalQuestions, r.Percentage())
		}
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show profile, materials and recent scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cliNotifier)
		if err != nil {
			return err
		}
		d, err := a.orch.Dashboard(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s <%s>\n", colorize(colorBold, d.Profile.FullName), d.Profile.Email)
		fmt.Fprintf(out, "Materials: %d\n", len(d.Materials))
		for _, m := range d.Materials {
			fmt.Fprintf(out, "  %s  %s\n", colorize(colorCyan, m.ID), m.Filename)
		}
		fmt.Fprintf(out, "Quizzes taken: %d\n", len(d.Results))
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve study tools over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(notify.Log(nil))
		if err != nil {
			return err
		}
		defer a.orch.Wait()
		return serveMCP(cmd.Context(), a)
	},
}

func serveMCP(ctx context.Context, a *app) error {
	srv := server.NewStdioServer(mcpserver.New(a.orch, version))
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
