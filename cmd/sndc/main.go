package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/soundclue/soundclue/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sndc",
	Short: "SoundClue CLI",
	Long: `sndc is the command-line interface for a SoundClue server.

It can create new audio challenges, fetch playable ones, and run the
play / beep / answer flow against a running server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.sndc")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.sndc/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "SoundClue server URL (default http://localhost:8080)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(randomCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(beepCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func apiClient() *client.Client {
	return client.New(serverURL)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

// printChoices renders a choice map in numeric key order.
func printChoices(choices map[string]client.Choice) {
	keys := make([]string, 0, len(choices))
	for k := range choices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	for _, k := range keys {
		ch := choices[k]
		fmt.Printf("  [%s] %s — %s\n", k, ch.Title, ch.Description)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── create ───────────────────────────────────────────────────────────────────

var createPrompts int

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new challenge (generation + rendering run async)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		ch, err := apiClient().CreateChallenge(ctx, createPrompts)
		if err != nil {
			return err
		}
		fmt.Printf("Created challenge %s (%s)\n", ch.ID, ch.Status)
		printChoices(ch.Choices)
		fmt.Println("Audio renders asynchronously; the challenge becomes playable once complete.")
		return nil
	},
}

func init() {
	createCmd.Flags().IntVar(&createPrompts, "prompts", 0, "Number of candidate prompts (0 uses the server default)")
}

// ── random / get ─────────────────────────────────────────────────────────────

var randomJSON bool

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Fetch a random playable challenge",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		ch, err := apiClient().RandomChallenge(ctx, 0)
		if err != nil {
			return err
		}
		if ch == nil {
			fmt.Println("No challenge available.")
			return nil
		}
		if randomJSON {
			return printJSON(ch)
		}
		printPublic(ch)
		return nil
	},
}

var getJSON bool

var getCmd = &cobra.Command{
	Use:   "get <challenge-id>",
	Short: "Fetch a challenge by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		ch, err := apiClient().GetChallenge(ctx, args[0])
		if err != nil {
			return err
		}
		if getJSON {
			return printJSON(ch)
		}
		printPublic(ch)
		return nil
	},
}

func init() {
	randomCmd.Flags().BoolVar(&randomJSON, "json", false, "Output raw JSON")
	getCmd.Flags().BoolVar(&getJSON, "json", false, "Output raw JSON")
}

func printPublic(ch *client.PublicChallenge) {
	fmt.Printf("Challenge %s\n", ch.ID)
	fmt.Printf("Audio: %s\n", ch.ChallengeSoundURL)
	fmt.Printf("Which of these %d sounds is playing?\n", ch.NumberOfPrompts)
	printChoices(ch.Choices)
}

// ── play / beep / answer ─────────────────────────────────────────────────────

var playCmd = &cobra.Command{
	Use:   "play <challenge-id>",
	Short: "Open a play session on a challenge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := apiClient().StartPlay(ctx, args[0])
		if err != nil {
			return err
		}
		if res.Err != "" {
			fmt.Printf("Cannot play: %s\n", res.Err)
			return nil
		}
		fmt.Printf("Session opened at %d. Press the beep command when you hear the marker.\n", res.StartPlay)
		return nil
	},
}

var beepCmd = &cobra.Command{
	Use:   "beep <challenge-id>",
	Short: "Report that the beep marker was heard (ends the session)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := apiClient().CheckBeep(ctx, args[0])
		if err != nil {
			return err
		}
		if res.Err != "" {
			fmt.Printf("Beep check failed: %s\n", res.Err)
			return nil
		}
		if res.Success {
			fmt.Println("Beep timing accepted.")
		} else {
			fmt.Println("Beep timing rejected.")
		}
		return nil
	},
}

var answerCmd = &cobra.Command{
	Use:   "answer <challenge-id> <choice-key>",
	Short: "Submit a candidate guess within the active session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := apiClient().CheckAnswer(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if res.Err != "" {
			fmt.Printf("Answer check failed: %s\n", res.Err)
			return nil
		}
		if res.Success {
			fmt.Println("Correct.")
		} else {
			fmt.Println("Wrong answer.")
		}
		return nil
	},
}

// ── check (stateless combined judgement) ─────────────────────────────────────

var checkCmd = &cobra.Command{
	Use:   "check <challenge-id> <beep-position> <choice-key>",
	Short: "Judge a beep position and guess together, without a session",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		beepPos, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("beep-position must be an integer: %w", err)
		}

		ctx, cancel := cmdContext()
		defer cancel()

		res, err := apiClient().CheckChallenge(ctx, args[0], beepPos, args[2])
		if err != nil {
			return err
		}
		if res.Err != "" {
			fmt.Printf("Check failed: %s\n", res.Err)
			return nil
		}
		if res.Success {
			fmt.Println("Correct.")
		} else {
			fmt.Println("Wrong.")
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sndc version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sndc %s\n", version)
	},
}
