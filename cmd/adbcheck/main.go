// adbcheck runs acceptance checks against an Android device through the adb server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	adb "github.com/prife/adbcheck"
	"github.com/prife/adbcheck/acceptance"
	"github.com/prife/adbcheck/config"
	"github.com/prife/adbcheck/harness"
	"github.com/prife/adbcheck/report"
	"github.com/prife/adbcheck/services"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const version = "1.0.0"

var (
	app = kingpin.New("adbcheck", "Android device acceptance checks over adb.")

	configFile = app.Flag("config", "YAML config file.").Short('c').String()
	serial     = app.Flag("serial", "Device serial, defaults to the only online device.").Short('s').String()
	logLevel   = app.Flag("log-level", "panic, fatal, error, warn, info, debug or trace.").String()
	format     = app.Flag("format", "Output format.").Short('o').Enum(config.FormatText, config.FormatTable, config.FormatJSON, config.FormatMarkdown)
	adbHost    = app.Flag("adb-host", "Host of the adb server.").String()
	adbPort    = app.Flag("adb-port", "Port of the adb server.").Int()
	adbConnect = app.Flag("connect", "host:port to `adb connect` first, reconnected after every reboot.").String()

	infoCmd  = app.Command("info", "Print device identity, memory and storage.")
	infoRoot = infoCmd.Flag("root", "Restart adbd as root first.").Bool()

	installCmd = app.Command("install", "Install every apk of a directory.")
	installDir = installCmd.Flag("dir", "Directory with the apks, relative to the executable.").String()

	pingCmd       = app.Command("ping", "Measure network latency from the device.")
	pingCount     = pingCmd.Flag("count", "Echo requests per endpoint.").Short('n').Int()
	pingParallel  = pingCmd.Flag("concurrency", "Endpoints pinged at once.").Int()
	pingEndpoints = pingCmd.Arg("endpoints", "Hosts to ping.").Strings()

	rebootCmd      = app.Command("reboot-test", "Reboot repeatedly and check the network interface comes up.")
	rebootCycles   = rebootCmd.Flag("cycles", "Number of reboots.").Short('n').Int()
	rebootIface    = rebootCmd.Flag("interface", "Interface expected to get an IPv4 address.").Short('i').String()
	rebootWait     = rebootCmd.Flag("boot-wait", "Pause after the reboot request before polling.").Duration()
	rebootTimeout  = rebootCmd.Flag("ready-timeout", "Bound for the device to come back.").Duration()
	rebootClassify = rebootCmd.Flag("classify", "structural or substring.").Enum("structural", "substring")
	rebootBooted   = rebootCmd.Flag("boot-completed", "Also wait for sys.boot_completed=1.").Bool()

	cameraCmd      = app.Command("camera", "Record a clip with the v4l2 capture binary.")
	cameraBinary   = cameraCmd.Flag("binary", "Local capture binary.").String()
	cameraDuration = cameraCmd.Flag("duration", "Capture duration.").Duration()
	cameraOutput   = cameraCmd.Flag("output", "Directory for the pulled clip.").String()

	allCmd     = app.Command("all", "Run info, install, ping, reboot-test and camera when enabled.")
	versionCmd = app.Command("version", "Print the version.")
	configCmd  = app.Command("config", "Print the effective configuration as YAML.")
	configSave = configCmd.Flag("save", "Write it to this file instead.").String()
	rawCmd     = app.Command("raw", "Send one raw request to the adb server, eg. host:version.")
	rawRequest = rawCmd.Arg("request", "Service request.").Required().String()
)

func initLog(level string) {
	log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			filename := path.Base(f.File)
			return "", fmt.Sprintf("%s:%d", filename, f.Line)
		},
	})
	lvl, err := log.ParseLevel(level)
	if level == "" {
		lvl, err = log.InfoLevel, nil
	}
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// loadConfig reads the config file when given and applies the command line on top.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}

	setString(&cfg.Serial, *serial)
	setString(&cfg.LogLevel, *logLevel)
	setString(&cfg.Format, *format)
	setString(&cfg.Adb.Host, *adbHost)
	setInt(&cfg.Adb.Port, *adbPort)
	setString(&cfg.Adb.Connect, *adbConnect)

	cfg.Info.Root = cfg.Info.Root || *infoRoot
	setString(&cfg.Install.Dir, *installDir)

	setInt(&cfg.Ping.Count, *pingCount)
	setInt(&cfg.Ping.Concurrency, *pingParallel)
	if len(*pingEndpoints) > 0 {
		cfg.Ping.Endpoints = *pingEndpoints
	}

	setInt(&cfg.Reboot.Cycles, *rebootCycles)
	setString(&cfg.Reboot.Interface, *rebootIface)
	setDuration(&cfg.Reboot.BootWait, *rebootWait)
	setDuration(&cfg.Reboot.ReadyTimeout, *rebootTimeout)
	setString(&cfg.Reboot.ClassifyMode, *rebootClassify)
	cfg.Reboot.RequireBootCompleted = cfg.Reboot.RequireBootCompleted || *rebootBooted

	setString(&cfg.Camera.Binary, *cameraBinary)
	setDuration(&cfg.Camera.Duration, *cameraDuration)
	setString(&cfg.Camera.OutputDir, *cameraOutput)

	return cfg, cfg.Validate()
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func main() {
	app.Version(version)
	app.HelpFlag.Short('h')
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == versionCmd.FullCommand() {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		initLog(*logLevel)
		log.Fatalln(err)
	}
	initLog(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		// the first signal lets the running step finish, a second one aborts
		<-sigs
		log.Warn("interrupted, finishing the current step, interrupt again to abort")
		cancel()
		<-sigs
		os.Exit(130)
	}()

	if err = run(ctx, command, cfg); err != nil {
		log.Errorln(err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config) error {
	switch command {
	case configCmd.FullCommand():
		if *configSave != "" {
			return config.Save(*configSave, cfg)
		}
		return yaml.NewEncoder(os.Stdout).Encode(cfg)
	case rawCmd.FullCommand():
		return doRaw(ctx, cfg, *rawRequest)
	}

	client, err := services.InitAdb(cfg.Adb)
	if err != nil {
		return err
	}
	desc, err := services.SelectDevice(client, cfg.Serial)
	if err != nil {
		return err
	}
	cfg.Serial = desc.Serial()
	t := &tester{cfg: cfg, client: client, dev: client.Device(desc)}

	switch command {
	case infoCmd.FullCommand():
		return t.info(ctx)
	case installCmd.FullCommand():
		return t.install(ctx)
	case pingCmd.FullCommand():
		return t.ping(ctx)
	case rebootCmd.FullCommand():
		return t.rebootTest(ctx)
	case cameraCmd.FullCommand():
		return t.camera(ctx)
	case allCmd.FullCommand():
		return t.all(ctx)
	}
	return fmt.Errorf("unknown command %s", command)
}

type tester struct {
	cfg    *config.Config
	client *adb.Adb
	dev    *adb.Device
}

func (t *tester) info(ctx context.Context) error {
	info, err := acceptance.CollectDeviceInfo(ctx, t.dev, acceptance.InfoOptions{Root: t.cfg.Info.Root})
	if err != nil {
		log.Warnf("device info incomplete: %v", err)
	}
	return report.RenderDeviceInfo(os.Stdout, info, t.cfg.Format)
}

func (t *tester) install(ctx context.Context) error {
	dir := acceptance.ResolveDir(t.cfg.Install.Dir)
	results, err := acceptance.InstallDir(ctx, t.dev, dir, acceptance.InstallOptions{
		Timeout:  t.cfg.Install.Timeout,
		Progress: t.cfg.Format != config.FormatJSON,
		Output:   os.Stderr,
	})
	if rerr := report.RenderInstall(os.Stdout, results, t.cfg.Format); rerr != nil {
		return rerr
	}
	return err
}

func (t *tester) ping(ctx context.Context) error {
	results, err := acceptance.MeasureLatency(ctx, t.dev, t.cfg.Ping.Endpoints, t.cfg.Ping.Count, t.cfg.Ping.Concurrency)
	if rerr := report.RenderPing(os.Stdout, results, t.cfg.Format); rerr != nil {
		return rerr
	}
	return err
}

func (t *tester) rebootTest(ctx context.Context) error {
	mode, err := harness.ParseClassifyMode(t.cfg.Reboot.ClassifyMode)
	if err != nil {
		return err
	}

	ch := harness.NewAdbChannel(t.dev)
	ch.RequireBootCompleted = t.cfg.Reboot.RequireBootCompleted
	if t.cfg.Adb.Connect != "" {
		ch.Reconnect = harness.TCPReconnect(t.client, t.cfg.Adb.Connect)
	}

	h := harness.New(ch,
		harness.WithClassifyMode(mode),
		harness.WithLogger(log.WithField("serial", t.cfg.Serial)),
		harness.WithObserver(func(c harness.TestCycle) {
			log.Infof("cycle %d/%d: %s (%s)", c.Index+1, t.cfg.Reboot.Cycles, c.Outcome, c.Duration.Round(time.Second))
		}),
	)
	rep, err := h.Run(ctx, harness.Config{
		Cycles:       t.cfg.Reboot.Cycles,
		BootWait:     t.cfg.Reboot.BootWait,
		ReadyTimeout: t.cfg.Reboot.ReadyTimeout,
		Interface:    t.cfg.Reboot.Interface,
	})
	if err != nil {
		return err
	}
	return report.RenderHarness(os.Stdout, rep, t.cfg.Format)
}

func (t *tester) camera(ctx context.Context) error {
	c := acceptance.NewCamera(t.dev)
	c.Binary = acceptance.ResolveDir(t.cfg.Camera.Binary)
	c.Width = t.cfg.Camera.Width
	c.Height = t.cfg.Camera.Height
	c.Duration = t.cfg.Camera.Duration
	c.OutputDir = t.cfg.Camera.OutputDir
	c.Remount = t.cfg.Camera.Remount
	c.Progress = t.cfg.Format != config.FormatJSON
	c.Output = os.Stderr

	res, err := c.Run(ctx)
	if err != nil {
		return err
	}
	return report.RenderCapture(os.Stdout, res, t.cfg.Format)
}

var banner = strings.Repeat("***", 20)

type section struct {
	name string
	run  func(context.Context) error
}

// all runs every section in order. A failed section is logged and the next one runs.
func (t *tester) all(ctx context.Context) error {
	fmt.Printf("adbcheck %s\n", version)
	sections := []section{
		{"device info", t.info},
		{"apk install", t.install},
		{"ping latency", t.ping},
		{"reboot test", t.rebootTest},
	}
	if t.cfg.Camera.Enabled {
		sections = append(sections, section{"camera", t.camera})
	}

	failed := 0
	for _, s := range sections {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("%s\n%s\n%s\n", banner, s.name, banner)
		if err := s.run(ctx); err != nil {
			failed++
			log.Errorf("%s: %v", s.name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sections failed", failed, len(sections))
	}
	return ctx.Err()
}
