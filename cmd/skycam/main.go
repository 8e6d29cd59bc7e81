// skycam serves one camera sensor to many clients as an MJPEG feed with a
// runtime settings control plane.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-skycam/internal/config"
	"github.com/teslashibe/go-skycam/internal/httpc"
	"github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/camera"
	_ "github.com/teslashibe/go-skycam/pkg/device/cvcam" // Register the gocv driver
	"github.com/teslashibe/go-skycam/pkg/gateway"
	_ "github.com/teslashibe/go-skycam/pkg/overlay/cvtext" // Register the gocv annotator
)

var (
	cfgFile string
	host    string
	port    int
	driver  string
	debug   bool

	gatewayURL string
)

var rootCmd = &cobra.Command{
	Use:   "skycam",
	Short: "Camera gateway: MJPEG streaming with runtime sensor controls",
	Long: `skycam exposes a single camera sensor to many HTTP clients.

It streams an annotated MJPEG feed at /video_feed and accepts runtime
sensor adjustments, presets and resets. Failed adjustments are rolled
back without interrupting open streams.

Environment Variables:
  SKYCAM_HOST          - listen host
  SKYCAM_PORT          - listen port
  SKYCAM_DRIVER        - camera driver (sim, libcamera, gocv)
  SKYCAM_LOG_LEVEL     - log level (debug, info, warn, error)
  SKYCAM_MQTT_BROKER   - enables MQTT telemetry
  SKYCAM_AUDIT_PATH    - enables the SQLite audit log`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	RunE:  runServe,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Print the preset registry",
	RunE:  runPresets,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running gateway's stream status (exit 1 when stopped)",
	RunE:  runStatus,
}

var presetCmd = &cobra.Command{
	Use:   "preset <name>",
	Short: "Apply a preset on a running gateway",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreset,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default settings on a running gateway",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var setCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Change settings on a running gateway (exposureTime in ms)",
	Example: `  skycam set iso=8 exposureTime=33.3 awbMode=Daylight
  skycam set hdrMode=Night noiseReductionMode=HighQuality`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	serveCmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().StringVar(&driver, "driver", "", "camera driver: sim, libcamera, gocv (overrides config)")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	for _, c := range []*cobra.Command{statusCmd, presetCmd, resetCmd, setCmd} {
		c.Flags().StringVar(&gatewayURL, "url", "http://localhost:8080", "gateway base URL")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(setCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies serve flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if driver != "" {
		cfg.Camera.Driver = driver
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Init(cfg.Logging.Level, cfg.Logging.Format)

	app, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	if err := app.Init(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return app.Run(ctx)
}

func runPresets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	extra, err := cfg.PresetSets()
	if err != nil {
		return err
	}
	reg, err := camera.NewRegistry(extra)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range reg.Names() {
		set, _ := reg.Get(name)
		b, err := json.Marshal(camera.ToWire(set))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-12s %s\n", name, b)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	var got struct {
		Status string `json:"status"`
	}
	if err := httpc.GetJSON(ctx, endpoint("/stream_status"), &got); err != nil {
		return fmt.Errorf("query status: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), got.Status)
	if got.Status != "active" {
		os.Exit(1)
	}
	return nil
}

func endpoint(path string) string {
	return strings.TrimRight(gatewayURL, "/") + path
}

// controlReply is the body of every control-plane response.
type controlReply struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Messages []string `json:"messages"`
}

func runPreset(cmd *cobra.Command, args []string) error {
	return postControl(cmd, "/apply_preset", map[string]string{"preset": args[0]})
}

func runReset(cmd *cobra.Command, args []string) error {
	return postControl(cmd, "/reset_camera", struct{}{})
}

func runSet(cmd *cobra.Command, args []string) error {
	req, err := parseAssignments(args)
	if err != nil {
		return err
	}
	return postControl(cmd, "/update_camera", req)
}

// parseAssignments turns key=value arguments into an update request.
// Values that parse as numbers or booleans are sent as such.
func parseAssignments(args []string) (map[string]any, error) {
	req := make(map[string]any, len(args))
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid setting %q, want key=value", arg)
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			req[key] = f
		} else if b, err := strconv.ParseBool(val); err == nil {
			req[key] = b
		} else {
			req[key] = val
		}
	}
	return req, nil
}

// postControl sends body to a control endpoint and prints the gateway's
// message. A non-success reply is returned as an error.
func postControl(cmd *cobra.Command, path string, body any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var reply controlReply
	code, err := httpc.PostJSON(ctx, endpoint(path), body, &reply)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if reply.Status != "success" {
		msg := reply.Message
		if len(reply.Messages) > 0 {
			msg = strings.Join(reply.Messages, " ")
		}
		return fmt.Errorf("gateway answered %d: %s", code, msg)
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply.Message)
	return nil
}
