// ofsrescue - Salvage files from damaged Amiga OFS disk images
//
// Usage:
//
//	ofsrescue recover <image> [start [end]] [--out dir]
//	ofsrescue scan <image> [--hex]
//	ofsrescue dump <image> <sector>
//	ofsrescue ls <image> [-l] [-R] [path]
//	ofsrescue cat <image> <path>
//	ofsrescue stat <image> <path>
//	ofsrescue info <image>
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lvdlvd/ofsrescue/cmd"
	"github.com/lvdlvd/ofsrescue/config"
	"github.com/lvdlvd/ofsrescue/detect"
	"github.com/lvdlvd/ofsrescue/fsys/salvagefs"
	"github.com/lvdlvd/ofsrescue/image"
	"github.com/lvdlvd/ofsrescue/ofs"
	"github.com/lvdlvd/ofsrescue/salvage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ofsrescue: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, a := newRootCmd(stdout, stderr)
	defer a.close()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// app holds the persistent flags and the state shared by subcommands
type app struct {
	stdout, stderr io.Writer

	configPath string
	start, end int
	rootSector uint32
	maxDepth   int
	verbose    bool
	logLevel   string
	logFormat  string
	logOutput  string

	cfg    *config.Config
	log    *slog.Logger
	closer io.Closer
}

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "ofsrescue",
		Short:         "Salvage files from damaged Amiga OFS disk images",
		Long:          "Recover files from Amiga Old File System images by classifying every sector on its own, without trusting bitmaps, hash tables or checksums.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return a.setup(c)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.IntVar(&a.start, "start", ofs.DefaultStartSector, "first sector to scan")
	pf.IntVar(&a.end, "end", ofs.DefaultEndSector, "one past the last sector to scan")
	pf.Uint32Var(&a.rootSector, "root", ofs.DefaultRootSector, "root block sector")
	pf.IntVar(&a.maxDepth, "max-depth", ofs.DefaultMaxPathDepth, "maximum directory depth followed")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log every sector")
	pf.StringVar(&a.logLevel, "log-level", "info", "debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "auto", "text|json|auto")
	pf.StringVar(&a.logOutput, "log-output", "stderr", "stderr|stdout|file|none")

	root.AddCommand(
		a.recoverCmd(),
		a.scanCmd(),
		a.dumpCmd(),
		a.lsCmd(),
		a.catCmd(),
		a.statCmd(),
		a.infoCmd(),
	)
	return root, a
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
	}
}

// setup loads the configuration, applies flags given explicitly on the
// command line over it and creates the logger
func (a *app) setup(c *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(a.configPath); err != nil {
			return err
		}
	}

	flags := c.Flags()
	if flags.Changed("start") {
		cfg.Scan.StartSector = a.start
	}
	if flags.Changed("end") {
		cfg.Scan.EndSector = a.end
		cfg.Scan.Pinned = true
	}
	if flags.Changed("root") {
		cfg.Scan.RootSector = a.rootSector
		cfg.Scan.Pinned = true
	}
	if flags.Changed("max-depth") {
		cfg.Scan.MaxPathDepth = a.maxDepth
	}
	if flags.Changed("verbose") {
		cfg.Logging.Verbose = a.verbose
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
	if flags.Changed("log-output") {
		cfg.Logging.Output = a.logOutput
	}
	a.cfg = cfg

	log, closer, err := createLogger(cfg.Logging, a.stderr)
	if err != nil {
		return err
	}
	a.log, a.closer = log, closer
	return nil
}

// open loads an image and wraps the scan window in a store. An HD image
// gets the HD window and root unless the end or root sector was given on
// the command line or in the config file.
func (a *app) open(path string) (*ofs.Store, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	data, container, err := image.Load(path)
	if err != nil {
		return nil, err
	}

	scan := &a.cfg.Scan
	if geom, ok := detect.GeometryForSize(int64(len(data))); ok && geom != detect.DD && !scan.Pinned {
		scan.EndSector = geom.Sectors
		scan.RootSector = geom.RootSector
		a.log.Info("Using image geometry", "geometry", geom.Name, "end", scan.EndSector, "root", scan.RootSector)
	}

	a.log.Debug("Image loaded", "path", path, "container", container.String(), "bytes", len(data))
	return ofs.Load(data, scan.StartSector, scan.EndSector)
}

func (a *app) options() salvage.Options {
	return salvage.Options{
		RootSector:   a.cfg.Scan.RootSector,
		MaxPathDepth: a.cfg.Scan.MaxPathDepth,
		Logger:       a.log,
	}
}

func (a *app) recoverCmd() *cobra.Command {
	var out, onError, manifest string
	var workers int

	c := &cobra.Command{
		Use:   "recover <image> [start [end]]",
		Short: "Write every recoverable file below the output directory",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(c *cobra.Command, args []string) error {
			if len(args) > 1 {
				if err := a.positionalWindow(args[1:]); err != nil {
					return err
				}
			}
			o := &a.cfg.Output
			if c.Flags().Changed("out") {
				o.Dir = out
			}
			if c.Flags().Changed("on-error") {
				o.OnWriteError = onError
			}
			if c.Flags().Changed("workers") {
				o.Workers = workers
			}
			if c.Flags().Changed("manifest") {
				o.Manifest = manifest
			}

			store, err := a.open(args[0])
			if err != nil {
				return err
			}
			policy, err := salvage.ParsePolicy(o.OnWriteError)
			if err != nil {
				return err
			}

			opts := a.options()
			opts.OutputDir = o.Dir
			opts.OnWriteError = policy
			opts.Workers = o.Workers

			rep, err := salvage.Recover(c.Context(), store, opts)
			if err != nil {
				return err
			}
			cmd.Summary(rep, a.stdout)

			if o.Manifest == "" {
				return nil
			}
			m, err := salvage.BuildManifest(rep, o.Dir)
			if err != nil {
				return err
			}
			m.Image = args[0]
			return salvage.WriteManifest(o.Manifest, m)
		},
	}
	c.Flags().StringVarP(&out, "out", "o", ".", "output directory")
	c.Flags().StringVar(&onError, "on-error", "abort", "abort|skip on directory or file write errors")
	c.Flags().IntVarP(&workers, "workers", "j", 1, "files written concurrently")
	c.Flags().StringVar(&manifest, "manifest", "", "write a YAML manifest of the run to this path")
	return c
}

// positionalWindow applies "start [end]" given after the image path
func (a *app) positionalWindow(args []string) error {
	vals := make([]int, len(args))
	for i, s := range args {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid sector %q: %w", s, err)
		}
		vals[i] = v
	}
	a.cfg.Scan.StartSector = vals[0]
	if len(vals) > 1 {
		a.cfg.Scan.EndSector = vals[1]
		a.cfg.Scan.Pinned = true
	}
	return nil
}

func (a *app) scanCmd() *cobra.Command {
	var opts cmd.ScanOptions
	c := &cobra.Command{
		Use:   "scan <image>",
		Short: "Classify every sector of the window and show where its data would go",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			store, err := a.open(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.Scan(c.Context(), store, a.options(), a.stdout, opts)
			return err
		},
	}
	c.Flags().BoolVar(&opts.Hex, "hex", false, "hex/ASCII preview of data payloads")
	return c
}

func (a *app) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <image> <sector>",
		Short: "Decode and hex dump one sector",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			sector, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid sector %q: %w", args[1], err)
			}
			store, err := a.open(args[0])
			if err != nil {
				return err
			}
			return cmd.Dump(store, sector, a.stdout)
		},
	}
}

// openFS builds the read-only view of what recover would write
func (a *app) openFS(ctx context.Context, path string) (*salvagefs.FS, error) {
	store, err := a.open(path)
	if err != nil {
		return nil, err
	}
	return salvagefs.Open(ctx, store, a.options())
}

func (a *app) lsCmd() *cobra.Command {
	var opts cmd.LsOptions
	c := &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List recoverable files without writing them",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			sfs, err := a.openFS(c.Context(), args[0])
			if err != nil {
				return err
			}
			defer sfs.Close()

			path := "."
			if len(args) > 1 {
				path = args[1]
			}
			return cmd.Ls(sfs, path, a.stdout, opts)
		},
	}
	c.Flags().BoolVarP(&opts.Long, "long", "l", false, "use long listing format")
	c.Flags().BoolVarP(&opts.Recursive, "recursive", "R", false, "list subdirectories recursively")
	return c
}

func (a *app) catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Write a recoverable file to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			sfs, err := a.openFS(c.Context(), args[0])
			if err != nil {
				return err
			}
			defer sfs.Close()
			return cmd.Cat(sfs, args[1], a.stdout)
		},
	}
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <image> <path>",
		Short: "Show where a recoverable file's blocks are",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			sfs, err := a.openFS(c.Context(), args[0])
			if err != nil {
				return err
			}
			defer sfs.Close()
			return cmd.Stat(sfs, args[1], a.stdout)
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Identify the image container, boot block and geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, container, err := image.Load(args[0])
			if err != nil {
				return err
			}
			return cmd.Info(data, container, a.stdout)
		},
	}
}
