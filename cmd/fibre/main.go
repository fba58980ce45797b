// Command fibre discovers a fibre device through a WebAssembly build of
// libfibre and inspects or calls into it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	fibre "github.com/wippyai/fibre-go"
	"github.com/wippyai/fibre-go/config"
	"github.com/wippyai/fibre-go/native/wasmengine"
	"github.com/wippyai/fibre-go/reactor"
	"github.com/wippyai/fibre-go/runtime"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: fibre [flags] [discover|dump]")
	fmt.Fprintln(os.Stderr, "       fibre [flags] call <function> [args...]")
	fmt.Fprintln(os.Stderr, "       fibre [flags] get <property>")
	fmt.Fprintln(os.Stderr, "       fibre [flags] set <property> <value>")
	fmt.Fprintln(os.Stderr, "       fibre [flags] -i  (interactive mode)")
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}

func main() {
	var (
		configFile  = flag.String("config", "", "Path to fibre.toml")
		wasmFile    = flag.String("wasm", "", "Path to the libfibre wasm build")
		path        = flag.String("path", "", "Discovery path (default \"usb\")")
		serial      = flag.String("serial", "", "Only accept the device with this serial number")
		timeout     = flag.Duration("timeout", 0, "Discovery timeout (default 10s)")
		depth       = flag.Int("depth", 2, "Dump depth")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Usage = usage
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "wasm":
			cfg.Wasm = *wasmFile
		case "path":
			cfg.Path = *path
		case "serial":
			cfg.SerialNumber = *serial
		case "timeout":
			cfg.Timeout = *timeout
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	if cfg.Wasm == "" {
		usage()
		os.Exit(1)
	}

	log, err := cfg.Logger()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = log.Sync() }()

	rt, err := newRuntime(cfg, log)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fatal(fmt.Errorf("interactive mode requires a terminal"))
		}
		if err := runInteractive(ctx, rt, cfg); err != nil {
			fatal(err)
		}
		return
	}

	if err := run(ctx, rt, cfg, *depth, flag.Args()); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func newRuntime(cfg config.Config, log *zap.Logger) (*runtime.Runtime, error) {
	runtime.SetLogger(log)
	reactor.SetLogger(log.Named("reactor"))
	wasmengine.SetLogger(log.Named("wasm"))

	wasm, err := os.ReadFile(cfg.Wasm)
	if err != nil {
		return nil, fmt.Errorf("read wasm: %w", err)
	}

	opts := []runtime.Option{runtime.WithLogger(log)}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := runtime.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, runtime.WithMetrics(m))
		go func() {
			handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil {
				log.Error("metrics server", zap.Error(err))
			}
		}()
	}

	opener := wasmengine.Opener(wasm, &wasmengine.Config{
		MemoryLimitPages: cfg.MemoryLimitPages,
		DisableWASI:      cfg.DisableWASI,
	})
	return fibre.Init(opener, opts...), nil
}

func findDevice(ctx context.Context, rt *runtime.Runtime, cfg config.Config) (*fibre.Object, error) {
	obj, err := rt.FindAny(ctx,
		fibre.WithPath(cfg.Path),
		fibre.WithSerialNumber(cfg.SerialNumber),
		fibre.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("no device found on %q within %s", cfg.Path, cfg.Timeout)
	}
	return obj, nil
}

func run(ctx context.Context, rt *runtime.Runtime, cfg config.Config, depth int, args []string) error {
	cmd := "discover"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	obj, err := findDevice(ctx, rt, cfg)
	if err != nil {
		return err
	}

	switch cmd {
	case "discover", "dump":
		return discover(ctx, obj, depth)
	case "call":
		if len(args) < 1 {
			return fmt.Errorf("call: missing function name")
		}
		return call(ctx, obj, args[0], args[1:])
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("get: expected <property>")
		}
		v, err := obj.Get(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(formatValue(v))
		return nil
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("set: expected <property> <value>")
		}
		return set(ctx, obj, args[0], args[1])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func header(s string) string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return headerStyle.Render(s)
	}
	return s
}

func discover(ctx context.Context, obj *fibre.Object, depth int) error {
	serial, err := runtime.SerialNumber(ctx, obj)
	if err != nil {
		return err
	}
	name, err := obj.InterfaceName()
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", header("Device"), obj)
	fmt.Printf("Serial number: %s\n", serial)
	fmt.Printf("Interface: %s\n\n", name)
	fmt.Println(obj.Dump(ctx, depth))
	return nil
}

func call(ctx context.Context, obj *fibre.Object, name string, values []string) error {
	m, err := obj.Member(name)
	if err != nil {
		return err
	}
	fn, ok := m.(*runtime.Function)
	if !ok {
		return fmt.Errorf("%s is not a function", name)
	}
	args, err := parseArgs(fn.Inputs(), values)
	if err != nil {
		return fmt.Errorf("%s: %w", fn.Signature(), err)
	}
	result, err := obj.Call(ctx, name, args...)
	if err != nil {
		return err
	}
	fmt.Println(formatValue(result))
	return nil
}

func set(ctx context.Context, obj *fibre.Object, name, value string) error {
	token, err := propertyToken(obj, name)
	if err != nil {
		return err
	}
	v, err := parseArg(value, witType(token))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return obj.Set(ctx, name, v)
}

// propertyToken returns the codec token of a property's value, taken from the
// output of its read function.
func propertyToken(obj *fibre.Object, name string) (string, error) {
	sub, err := obj.Attr(name)
	if err != nil {
		return "", err
	}
	m, err := sub.Member("read")
	if err != nil {
		return "", err
	}
	fn, ok := m.(*runtime.Function)
	if !ok || len(fn.Outputs()) != 1 {
		return "", fmt.Errorf("%s is not a property", name)
	}
	return fn.Outputs()[0].Token, nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case []any:
		s := "("
		for i, e := range v {
			if i > 0 {
				s += ", "
			}
			s += formatValue(e)
		}
		return s + ")"
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
