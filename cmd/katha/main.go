package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/kathaverse/katha/internal/adapter"
	"github.com/kathaverse/katha/internal/catalog"
	"github.com/kathaverse/katha/internal/engagement"
	"github.com/kathaverse/katha/internal/offline"
	"github.com/kathaverse/katha/internal/reconcile"
	"github.com/kathaverse/katha/internal/remote"
	"github.com/kathaverse/katha/internal/search"
	"github.com/kathaverse/katha/internal/store"
	"github.com/kathaverse/katha/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	var doLogin bool
	var doLogout bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.BoolVar(&doLogin, "login", false, "sign in and save the session token")
	flag.BoolVar(&doLogout, "logout", false, "forget the saved session token")
	flag.Parse()

	if showVersion {
		fmt.Printf("katha %s\n", Version)
		return
	}

	if err := run(doLogin, doLogout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(doLogin, doLogout bool) error {
	// Load configuration
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting katha", "version", Version)

	if doLogout {
		return runLogout(cfg)
	}
	if doLogin {
		return runLoginFlow(cfg, logger)
	}

	// Local persistence: guest store plus the offline response cache
	st, err := store.Open(cfg.Cache.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer st.Close()

	storage, err := offline.OpenBoltCacheStorage(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to open offline cache: %w", err)
	}
	defer storage.Close()

	// Offline controller: install the app shell for this build, then purge
	// caches left behind by older builds.
	base := strings.TrimRight(cfg.Server.URL, "/")
	ctrl := offline.NewController(offline.Config{
		Generation: "katha-" + Version,
		Shell: []string{
			base + "/",
			base + "/icons/icon-192.png",
			base + "/icons/icon-512.png",
			base + "/covers/default.png",
		},
		RootDocument: base + "/",
		StaticPrefix: "/assets/",
		Storage:      storage,
		Fetcher:      offline.NewHTTPFetcher(nil),
		Logger:       logger,
	})

	ctx := context.Background()
	if err := ctrl.Install(ctx); err != nil {
		return fmt.Errorf("offline cache install failed: %w", err)
	}
	if err := ctrl.Activate(ctx); err != nil {
		return fmt.Errorf("offline cache activate failed: %w", err)
	}
	defer ctrl.Flush()

	// All remote GETs flow through the offline controller
	httpClient := &http.Client{Transport: offline.NewTransport(ctrl, nil)}
	client := remote.NewClient(cfg.Server.URL, cfg.Server.Token, logger,
		remote.WithHTTPClient(httpClient))

	// Session + per-domain accessors
	session := reconcile.NewSession(client, st, logger)
	if cfg.IsAuthenticated() {
		session.Login()
		logger.Info("resumed session", "username", cfg.Server.Username)
	}

	favorites := reconcile.NewFavorites(session)
	history := reconcile.NewHistory(session)
	preferences := reconcile.NewPreferences(session)
	profile := reconcile.NewProfile(session)
	drafts := reconcile.NewDrafts(session)

	// On a fresh install, seed the reading preferences from the config file
	if _, onboarded := st.GetFlag(store.KeyOnboarded); !onboarded {
		if cfg.Reader.Language != "" || cfg.Reader.Mode != "" {
			patch := reconcile.PreferencesPatch{}
			if cfg.Reader.Language != "" {
				patch.Language = &cfg.Reader.Language
			}
			if cfg.Reader.Mode != "" {
				patch.Mode = &cfg.Reader.Mode
			}
			if err := preferences.Update(ctx, patch); err != nil {
				logger.Warn("failed to seed preferences from config", "error", err)
			}
		}
	}

	// Services
	catalogSvc := catalog.NewService(client, st, logger)
	searchSvc := search.NewService(logger)
	engagementSvc := engagement.NewService(st, logger)
	opener := adapter.NewOpener(base, logger)

	model := tui.NewModel(tui.Services{
		Session:     session,
		Catalog:     catalogSvc,
		Search:      searchSvc,
		Favorites:   favorites,
		History:     history,
		Preferences: preferences,
		Profile:     profile,
		Drafts:      drafts,
		Engagement:  engagementSvc,
		Opener:      opener,
		Logger:      logger,
	})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	logger.Info("starting TUI")

	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// runLoginFlow prompts for credentials, exchanges them for a session token
// and saves it. Local guest data is left untouched; favorites can be merged
// from inside the app afterwards.
func runLoginFlow(cfg *adapter.Config, logger *slog.Logger) error {
	fmt.Println()
	fmt.Printf("Signing in to %s\n", cfg.Server.URL)
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	input, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	username := strings.TrimSpace(input)
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	client := remote.NewClient(cfg.Server.URL, "", logger)
	token, err := client.Login(context.Background(), username, string(passwordBytes))
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	cfg.Server.Token = token
	cfg.Server.Username = username
	if err := adapter.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("✓ Signed in as %s\n", username)
	return nil
}

// runLogout drops the saved token. Remote data stays on the server; the
// guest store is untouched.
func runLogout(cfg *adapter.Config) error {
	if !cfg.IsAuthenticated() {
		fmt.Println("Not signed in.")
		return nil
	}
	if err := adapter.ClearToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	fmt.Println("✓ Signed out.")
	return nil
}
