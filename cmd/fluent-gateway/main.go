// ABOUTME: Entry point for the fluent-gateway chat backend
// ABOUTME: Serves the language-learning API and WebSocket relay, plus init and health commands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/fluentroot/fluent-gateway/internal/config"
	"github.com/fluentroot/fluent-gateway/internal/gateway"
	"github.com/fluentroot/fluent-gateway/internal/telemetry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
   __ _                  _                     _
  / _| |_   _  ___ _ __ | |_       __ _  __ _| |_ _____      ____ _ _   _
 | |_| | | | |/ _ \ '_ \| __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 |  _| | |_| |  __/ | | | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_| |_|\__,_|\___|_| |_|\__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                  |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: FLUENT_CONFIG env var > XDG_CONFIG_HOME/fluent/gateway.yaml > ~/.config/fluent/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FLUENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "fluent", "gateway.yaml")
}

// getDataPath returns the path to the fluent data directory.
// Priority: XDG_DATA_HOME/fluent > ~/.local/share/fluent
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "fluent")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: fluent-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		fmt.Println("  ready    Check database readiness and open connections")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runProbe(ctx, "/health")
	case "ready":
		err = runProbe(ctx, "/health/ready")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog := setupLogger(cfg.Logging, os.Stdout)
	defer closeLog()

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:      %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:        %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:    %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Translation: ")
	cyan.Print(cfg.Translation.Engine)
	fmt.Println()
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth disabled (no auth.jwt_secret)")
	}
	if cfg.Telemetry.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Telemetry:   %s\n", cfg.Telemetry.Dir)
	}

	fmt.Println()

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush telemetry", "error", err)
		}
	}()

	logger.Info("starting fluent-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	// Create and run gateway
	gw, err := gateway.New(ctx, cfg, logger, gateway.Options{Telemetry: providers})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runProbe requests path on the configured gateway and prints the response body.
func runProbe(ctx context.Context, path string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := "http://" + probeHost(cfg.Server.HTTPAddr) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// probeHost turns a listen address into one a client can dial.
// ":8000" and "0.0.0.0:8000" become "localhost:8000".
func probeHost(addr string) string {
	switch {
	case strings.HasPrefix(addr, ":"):
		return "localhost" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	default:
		return addr
	}
}

// initAnswers holds the values collected by runInit.
type initAnswers struct {
	HTTPAddr    string
	DBPath      string
	JWTSecret   string
	Engine      string
	EngineURL   string
	EngineKey   string
	ErrorFrames bool
	LogLevel    string
	LogFormat   string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("fluent-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDbPath := filepath.Join(getDataPath(), "fluent.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost"+config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	a.DBPath = prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Auth Configuration ---")
	if isYes(prompt(reader, "Require JWT auth?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		a.JWTSecret = secret
	}

	fmt.Println("\n--- Translation Configuration ---")
	a.Engine = prompt(reader, "Engine (passthrough/nllb/libretranslate/gemini)", "passthrough")
	switch a.Engine {
	case "nllb":
		a.EngineURL = prompt(reader, "NLLB server URL", "http://localhost:6060")
	case "libretranslate":
		a.EngineURL = prompt(reader, "LibreTranslate URL", "https://libretranslate.com")
		a.EngineKey = prompt(reader, "LibreTranslate API key (optional)", "")
	case "gemini":
		a.EngineKey = prompt(reader, "Gemini API key (leave empty to use ${GEMINI_API_KEY})", "${GEMINI_API_KEY}")
	}

	fmt.Println("\n--- Relay Configuration ---")
	a.ErrorFrames = isYes(prompt(reader, "Send error frames to clients?", "no"))

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	content := renderConfig(a)

	// ${VAR} references may not be set yet in this shell, so only warn.
	if _, err := config.Parse(content, config.FormatYAML); err != nil {
		color.New(color.FgYellow).Printf("\nWarning: config does not load in this environment: %v\n", err)
	}

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// 0600: the file may hold the JWT secret and engine keys
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(a.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  fluent-gateway serve\n")

	return nil
}

// renderConfig produces the YAML written by runInit.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# fluent-gateway configuration\n")
	cfg.WriteString("# Generated by fluent-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	if a.JWTSecret != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", a.JWTSecret))
		cfg.WriteString("  token_ttl: \"24h\"\n")
		cfg.WriteString("\n")
	}

	cfg.WriteString("relay:\n")
	cfg.WriteString("  broadcast_scope: \"conversation\"\n")
	cfg.WriteString(fmt.Sprintf("  error_frames: %t\n", a.ErrorFrames))
	cfg.WriteString("  persist_timeout: \"5s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("translation:\n")
	cfg.WriteString(fmt.Sprintf("  engine: %q\n", a.Engine))
	if a.EngineURL != "" {
		cfg.WriteString(fmt.Sprintf("  url: %q\n", a.EngineURL))
	}
	if a.EngineKey != "" {
		cfg.WriteString(fmt.Sprintf("  api_key: %q\n", a.EngineKey))
	}
	cfg.WriteString("  timeout: \"10s\"\n")
	cfg.WriteString("  breaker_threshold: 5\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("telemetry:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  dir: \"logs\"\n")

	return cfg.String()
}

// generateSecret returns a random 32-byte secret, base64 encoded.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
