// Command recall retrieves, scores and embeds conversation memories from the
// configured store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/recall"
	"github.com/Protocol-Lattice/recall/pkg/config"
	"github.com/Protocol-Lattice/recall/pkg/helpers"
	"github.com/Protocol-Lattice/recall/pkg/logging"
	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

var version = "dev"

type sceneFlags struct {
	chatID     string
	pov        string
	active     string
	messages   []string
	recent     string
	chatLength int
	preTokens  int
	finalTok   int
}

func (f *sceneFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.chatID, "chat", "", "conversation id")
	cmd.Flags().StringVar(&f.pov, "pov", "", "comma separated point-of-view characters")
	cmd.Flags().StringVar(&f.active, "active", "", "comma separated characters present in the scene")
	cmd.Flags().StringArrayVar(&f.messages, "message", nil, "recent user message (repeatable)")
	cmd.Flags().StringVar(&f.recent, "recent", "", "recent conversation text used when no message is given")
	cmd.Flags().IntVar(&f.chatLength, "chat-length", 0, "number of messages in the conversation")
	cmd.Flags().IntVar(&f.preTokens, "pre-tokens", 0, "stage one token budget (default from config)")
	cmd.Flags().IntVar(&f.finalTok, "final-tokens", 0, "final token budget (default from config)")
	_ = cmd.MarkFlagRequired("chat")
}

func (f *sceneFlags) context(cfg *config.Config) model.RetrievalContext {
	rctx := model.RetrievalContext{
		RecentContext:    f.recent,
		UserMessages:     f.messages,
		ChatLength:       f.chatLength,
		POVCharacters:    helpers.ParseCSVList(f.pov),
		ActiveCharacters: helpers.ParseCSVList(f.active),
		PreFilterTokens:  cfg.Retrieval.PreFilterTokens,
		FinalTokens:      cfg.Retrieval.FinalTokens,
	}
	if f.preTokens > 0 {
		rctx.PreFilterTokens = f.preTokens
	}
	if f.finalTok > 0 {
		rctx.FinalTokens = f.finalTok
	}
	return rctx
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		cfg        *config.Config
		logCloser  io.Closer
	)

	root := &cobra.Command{
		Use:          "recall",
		Short:        "Scene memory scoring and retrieval",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Logging.Level = logLevel
			}
			logger, closer, err := logging.New(loaded.Logging)
			if err != nil {
				return err
			}
			logging.SetGlobal(logger)
			cfg, logCloser = loaded, closer
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./recall.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	cfgFn := func() *config.Config { return cfg }
	root.AddCommand(newRetrieveCmd(cfgFn), newScoreCmd(cfgFn), newEmbedCmd(cfgFn), newConfigCmd(cfgFn))
	return root
}

func open(cmd *cobra.Command, cfg *config.Config) (*recall.Recall, error) {
	r, err := recall.FromConfig(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise recall: %w", err)
	}
	return r, nil
}

func newRetrieveCmd(cfg func() *config.Config) *cobra.Command {
	var (
		flags   sceneFlags
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Print the memory block for a scene",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := open(cmd, cfg())
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.Retrieve(cmd.Context(), flags.chatID, flags.context(cfg()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Text)
			if verbose {
				sel := res.Selection
				fmt.Fprintf(out, "\nmode=%s accessible=%d stage1=%d (%d tokens) selected=%d (%d tokens) rendered=%d (%d tokens)\n",
					sel.Mode, sel.Accessible, sel.Stage1, sel.Stage1Tokens, len(sel.Memories), sel.Tokens,
					len(res.Rendered.Included), res.Rendered.Tokens)
				if sel.FallbackReason != "" {
					fmt.Fprintf(out, "smart fallback: %s\n", sel.FallbackReason)
				}
				fmt.Fprintf(out, "selected: %s\n", helpers.MemoryIDs(sel.Memories))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print selection statistics")
	return cmd
}

func newScoreCmd(cfg func() *config.Config) *cobra.Command {
	var (
		flags  sceneFlags
		params string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Print the ranking with score breakdowns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := *cfg()
			if params != "" {
				p, err := helpers.ApplyParamOverrides(c.Scoring, helpers.ParseWeightsFlag(params))
				if err != nil {
					return err
				}
				c.Scoring = p
			}
			r, err := open(cmd, &c)
			if err != nil {
				return err
			}
			defer r.Close()

			scored, err := r.Rank(cmd.Context(), flags.chatID, flags.context(&c))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-4s %-12s %8s %8s %8s %8s %6s  %s\n", "#", "id", "score", "base", "vector", "keyword", "sim", "summary")
			for i, s := range scored {
				if limit > 0 && i >= limit {
					break
				}
				b := s.Breakdown
				fmt.Fprintf(out, "%-4d %-12s %8.4f %8.4f %8.4f %8.4f %6.3f  %s\n",
					i+1, s.Memory.ID, s.Score, b.Base, b.Vector, b.Keyword, b.Similarity,
					model.TruncateRunes(s.Memory.Summary, 60))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&params, "param", "", "scoring overrides, e.g. vector_weight=10,keyword_weight=2")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n memories")
	return cmd
}

func newEmbedCmd(cfg func() *config.Config) *cobra.Command {
	var chatIDs []string
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Backfill missing embeddings and persist them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := open(cmd, cfg())
			if err != nil {
				return err
			}
			defer r.Close()

			for _, id := range chatIDs {
				n, err := r.Backfill(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("backfill %s: %w", id, err)
				}
				log.Info().Str("chat_id", id).Int("embedded", n).Msg("backfill complete")
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d embedded\n", id, n)
			}
			if cache := r.Service().Cache(); cache != nil {
				s := cache.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "cache: %d hits, %d misses, %d failures\n", s.Hits, s.Misses, s.Failures)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&chatIDs, "chat", nil, "conversation id (repeatable)")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func newConfigCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "write [path]",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg().SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	})
	return cmd
}
