package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quicktab/quicktab/internal/api"
	"github.com/quicktab/quicktab/internal/config"
	"github.com/quicktab/quicktab/internal/hotkey"
	"github.com/quicktab/quicktab/internal/logger"
	"github.com/quicktab/quicktab/internal/registry"
	"github.com/quicktab/quicktab/internal/session"
	"github.com/quicktab/quicktab/internal/store"
	"github.com/quicktab/quicktab/internal/winsys"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the switcher daemon",
	Long: `Run the quicktab daemon: install the global key hook, keep window
previews fresh and serve session state to the switcher surface.`,
	Example: `  # Run with the default config
  quicktab run

  # Run with debug logging
  quicktab run --log-level debug`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	if viper.IsSet("server_port") && viper.GetInt("server_port") > 0 {
		configMgr.SetPort(viper.GetInt("server_port"))
	}
	if viper.IsSet("log_level") && viper.GetString("log_level") != "" {
		configMgr.SetLogLevel(viper.GetString("log_level"))
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("run")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Starting quicktab")

	dbPath, err := store.DefaultPath()
	if err != nil {
		return err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	// Stored overrides win over the config file.
	if settings, err := db.Settings(); err != nil {
		log.Warn().Err(err).Msg("Failed to load stored settings")
	} else if len(settings) > 0 {
		configMgr.ApplyOverrides(settings)
	}
	cfg = configMgr.Get()

	sys, err := winsys.NewX11()
	if err != nil {
		return fmt.Errorf("failed to connect to display server: %w", err)
	}
	defer sys.Close()

	history := registry.NewHistory(cfg.HistoryCap, db)
	reg := registry.New(sys, history, registry.Options{
		MinWidth:        cfg.MinWindowWidth,
		MinHeight:       cfg.MinWindowHeight,
		RefreshInterval: cfg.RefreshInterval(),
		MatchTolerance:  cfg.MatchTolerance,
		PreferIcons:     cfg.PreferIcons,
		MaxWindows:      cfg.MaxWindows,
	})
	reg.Start()
	defer reg.Stop()

	triggerSyms, err := hotkey.TriggerSyms(cfg.TriggerKey)
	if err != nil {
		return err
	}
	interceptor := hotkey.NewInterceptor(cfg.CycleKey, triggerSyms)

	coordinator := session.NewCoordinator(reg, interceptor)
	coordinator.Start()
	defer coordinator.Stop()

	source := hotkey.NewX11Source(sys.XUtil(), interceptor, cfg.TriggerKey, cfg.CycleKey)
	if err := source.Start(); err != nil {
		// MonitoringFailed already went to the coordinator; keep serving so
		// the surface can show guidance and ask for a retry.
		log.Warn().Err(err).Msg("Key hook not installed, switching gestures disabled")
	}
	defer source.Stop()

	server := api.NewServer(coordinator, reg, configMgr, db)
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Info().Int("port", cfg.ServerPort).Msg("quicktab is running, press Ctrl+C to stop")
	<-sigChan

	log.Info().Msg("Shutting down")
	return nil
}
