package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scroll-cli/internal/browser"
	"github.com/xkilldash9x/scroll-cli/internal/config"
	"github.com/xkilldash9x/scroll-cli/internal/observability"
	"github.com/xkilldash9x/scroll-cli/internal/runner"
)

// launchBrowser starts a browser and returns a session opener plus a
// shutdown func. Tests replace it to avoid launching Chrome.
var launchBrowser = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (runner.Opener, func(), error) {
	alloc, err := browser.NewAllocator(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	open := func(ctx context.Context) (runner.Session, error) {
		s, err := alloc.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return open, alloc.Close, nil
}

// newScrollCmd creates and configures the `scroll` command.
func newScrollCmd() *cobra.Command {
	scrollCmd := &cobra.Command{
		Use:   "scroll [urls...]",
		Short: "Scrolls each URL until the page stops growing",
		Long: `Opens every URL in its own browser tab and scrolls down 100px every 500ms
until the scrolled distance reaches the document height. The height is re-read
after every step, so pages that load more content as you scroll are followed
until they stop growing.

One JSON result per URL is written to stdout, or to --report when set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyScrollFlags(cmd, cfg); err != nil {
				return err
			}

			urlsFile, _ := cmd.Flags().GetString("urls-file")
			urls, err := runner.CollectURLs(args, urlsFile)
			if err != nil {
				return err
			}

			reporter, err := newReporter(cmd, cfg.Run())
			if err != nil {
				return err
			}
			defer reporter.Close()

			open, shutdown, err := launchBrowser(ctx, cfg.Browser(), logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer shutdown()

			_, err = runner.New(open, cfg.Run(), reporter, logger).Run(ctx, urls)
			if errors.Is(err, context.Canceled) {
				logger.Warn("Run aborted by signal.")
			}
			return err
		},
	}

	scrollCmd.Flags().StringP("urls-file", "f", "", "File with one URL per line ('#' starts a comment)")
	scrollCmd.Flags().IntP("concurrency", "j", 0, "Number of URLs scrolled in parallel (overrides config/env)")
	scrollCmd.Flags().String("snapshot-dir", "", "Directory to save the rendered HTML of each page after scrolling")
	scrollCmd.Flags().StringP("report", "o", "", "Write JSON-lines results to this file instead of stdout")
	scrollCmd.Flags().Bool("headless", true, "Run the browser without a window (overrides config/env)")
	scrollCmd.Flags().String("user-agent", "", "Static user agent for every tab")
	scrollCmd.Flags().Bool("random-user-agent", false, "Pick a random user agent for each tab")
	scrollCmd.Flags().Bool("fail-fast", false, "Stop the whole run at the first failed URL")
	scrollCmd.MarkFlagsMutuallyExclusive("user-agent", "random-user-agent")

	return scrollCmd
}

// applyScrollFlags copies explicitly set flags over the loaded config and
// validates the result.
func applyScrollFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()

	if flags.Changed("concurrency") {
		n, _ := flags.GetInt("concurrency")
		cfg.SetRunConcurrency(n)
	}
	if flags.Changed("snapshot-dir") {
		dir, _ := flags.GetString("snapshot-dir")
		cfg.SetRunSnapshotDir(dir)
	}
	if flags.Changed("report") {
		path, _ := flags.GetString("report")
		cfg.SetRunReportPath(path)
	}
	if flags.Changed("fail-fast") {
		ff, _ := flags.GetBool("fail-fast")
		cfg.SetRunFailFast(ff)
	}
	if flags.Changed("headless") {
		headless, _ := flags.GetBool("headless")
		cfg.SetBrowserHeadless(headless)
	}
	// A user agent chosen on the command line replaces the configured mode.
	if flags.Changed("user-agent") {
		ua, _ := flags.GetString("user-agent")
		cfg.SetBrowserUserAgent(ua)
		cfg.SetBrowserRandomUserAgent(false)
	}
	if flags.Changed("random-user-agent") {
		random, _ := flags.GetBool("random-user-agent")
		cfg.SetBrowserRandomUserAgent(random)
		if random {
			cfg.SetBrowserUserAgent("")
		}
	}

	browserCfg := cfg.Browser()
	if err := browserCfg.Validate(); err != nil {
		return fmt.Errorf("invalid browser flags: %w", err)
	}
	runCfg := cfg.Run()
	if err := runCfg.Validate(); err != nil {
		return fmt.Errorf("invalid run flags: %w", err)
	}
	return nil
}

func newReporter(cmd *cobra.Command, cfg config.RunConfig) (*runner.Reporter, error) {
	if cfg.ReportPath == "" {
		return runner.NewReporter(cmd.OutOrStdout()), nil
	}
	return runner.NewFileReporter(cfg.ReportPath)
}
