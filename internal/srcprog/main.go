// Public domain.

// Package srcprog implements the srcid command.
package srcprog

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/soniakeys/exit"

	"github.com/soniakeys/srcid/internal/gtsrcid"
	"github.com/soniakeys/srcid/internal/srcclass"
	"github.com/soniakeys/srcid/internal/srcconf"
	"github.com/soniakeys/srcid/internal/srcfits"
	"github.com/soniakeys/srcid/internal/srclog"
)

const versionString = "srcid version 2.0 Go source."
const copyrightString = "Public domain."

func Main() {
	defer exit.Handler()

	cl := parseCommandLine()
	cfg, err := srcconf.Load(cl.config, cl.classDir)
	if err != nil {
		exit.Log(err)
	}
	logger, err := srclog.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		exit.Log(err)
	}
	defer logger.Sync()
	log := logger.Sugar()
	if cfg.File != "" {
		log.Debugw("configuration", "file", cfg.File)
	}
	log.Infow("catalogue repository", "dir", cfg.CatDir)

	sources := srcclass.Defaults()
	if cfg.Classes.Dir != "" {
		if sources, err = srcclass.LoadDir(cfg.Classes.Dir); err != nil {
			exit.Log(err)
		}
	}
	if len(sources) == 0 {
		log.Warnw("no source classes", "dir", cfg.Classes.Dir)
	}

	engine := &gtsrcid.Exec{
		Command: cfg.Engine.Command,
		Dir:     cfg.Engine.Dir,
		LogFile: cfg.Engine.Log,
		Log:     log,
	}
	d := NewDriver(cfg, srcfits.Store{}, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	out, err := d.Run(ctx, cl.primary, sources)
	if err != nil {
		exit.Log(err)
	}
	log.Infow("run complete", "run", out.RunID, "classes", len(out.Classes),
		"processed", len(out.References), "width", out.Consolidation.Width)
}

type commandLine struct {
	classDir string // -C
	config   string // -c
	primary  string
}

func parseCommandLine() *commandLine {
	var cl commandLine
	dh, dv := defineFlags(flag.CommandLine, &cl)
	flag.Usage = func() {
		os.Stderr.WriteString(`
Usage: srcid [options] <LATCatalogue>    identify counterparts of sources
       srcid <LATCatalogue> [options]
       srcid -h                          display help and quick reference
       srcid -v                          display version and copyright

Options:
       -C <class-directory>
       -c <config-file>
`)
	}
	flag.Parse()
	args, _ := positional(flag.CommandLine) // CommandLine exits on error
	switch {
	case *dh:
		printHelp()
		os.Exit(0)
	case *dv:
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	case len(args) != 1:
		flag.Usage()
		os.Exit(1)
	}
	cl.primary = args[0]
	return &cl
}

func defineFlags(fs *flag.FlagSet, cl *commandLine) (dh, dv *bool) {
	dh = fs.Bool("h", false, "")
	dv = fs.Bool("v", false, "")
	fs.StringVar(&cl.classDir, "C", "", "")
	fs.StringVar(&cl.config, "c", "", "")
	return
}

// positional returns the non-flag arguments left after fs.Parse.  Flag
// parsing stops at the first non-flag argument, so options following the
// catalogue are parsed here.
func positional(fs *flag.FlagSet) (args []string, err error) {
	for fs.NArg() > 0 {
		args = append(args, fs.Arg(0))
		if err = fs.Parse(fs.Args()[1:]); err != nil {
			return
		}
	}
	return
}

func printHelp() {
	fmt.Println(`
Srcid associates the sources of a LAT point source catalogue with
counterparts from catalogues of known source classes.  Each class runs
the association engine, gtsrcid, and the resulting counterparts are
attached to the source catalogue.  All counterparts of a source are then
merged into one list ranked by probability.

Outputs:
   srcid.fits       source catalogue with per class columns
   srcid-lat.fits   consolidated catalogue and reference table
   srcid.reg        DS9 region overlay
   <class>.log      engine log per class

Catalogue repository, first found of:
   $SRCID_CAT
   $FERMI_CAT
   $GLAST_CAT
   /project-data/glast/cat

Built in classes:`)
	for _, s := range srcclass.Defaults() {
		if s.File == nil {
			continue
		}
		title := s.File.Title
		if title == "" {
			title = s.File.CatName
		}
		fmt.Printf("   %-9s %s\n", s.File.CatID, title)
	}
	fmt.Println(`
For full documentation:
   go doc github.com/soniakeys/srcid`)
}
