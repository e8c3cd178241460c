// Public domain.

// Package gtsrcid invokes the external association engine.
//
// The engine computes counterpart probabilities for one source class.  It
// is driven by named parameters on its command line, writes a result
// catalogue named by the outCatName parameter and a log file in its
// working directory.
package gtsrcid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/soniakeys/srcid/internal/srcclass"
	"github.com/soniakeys/srcid/internal/srcexpand"
)

// ErrInvocation reports an engine run that failed.
var ErrInvocation = errors.New("association engine failed")

// Defaults for the Exec fields.
const (
	DefaultCommand = "gtsrcid"
	DefaultLogFile = "gtsrcid.log"
)

// Params is the engine parameter record.
type Params struct {
	SrcCatName   string
	SrcCatPrefix string
	SrcCatQty    string
	SrcPosError  float64 // deg; 0 uses the catalogue's error ellipses
	CptCatName   string
	CptCatPrefix string
	CptCatQty    string
	CptPosError  float64 // deg
	CptDensFile  string
	OutCatName   string
	OutCatQty    [srcclass.MaxQuantities]string
	Select       [srcclass.MaxSelections]string
	ProbMethod   string
	ProbPrior    string
	ProbThres    float64
	MaxNumCpt    int
	FoM          string
	Chatter      int
	Clobber      bool
	Debug        bool
	Mode         string
}

// FromClass fills a parameter record for class c against the source
// catalogue srcCat, whose columns are referenced with srcPrefix.
func FromClass(c *srcclass.Class, srcCat, srcPrefix string) Params {
	return Params{
		SrcCatName:   srcCat,
		SrcCatPrefix: srcPrefix,
		SrcCatQty:    "*",
		SrcPosError:  c.SrcPosError,
		CptCatName:   c.CatPath,
		CptCatPrefix: c.ID,
		CptCatQty:    "*",
		CptPosError:  c.PosError,
		CptDensFile:  c.DensityMap,
		OutCatName:   c.OutCatName(),
		OutCatQty:    c.Quantities,
		Select:       c.Selections,
		ProbMethod:   c.ProbMethod,
		ProbPrior:    c.ProbPrior,
		ProbThres:    c.ProbThres,
		MaxNumCpt:    c.MaxCpt,
		FoM:          c.FoM,
		Chatter:      c.Chatter,
		Clobber:      true,
		Debug:        c.Debug,
		Mode:         "ql",
	}
}

// Expand delimits the qualified column names of names in the derived
// quantity and selection strings.
func (p *Params) Expand(names []string) {
	srcexpand.ExpandAll(p.OutCatQty[:], names)
	srcexpand.ExpandAll(p.Select[:], names)
}

// LogName is the name the engine log is kept under after a run.
func (p *Params) LogName() string {
	return strings.ToLower(p.CptCatPrefix) + ".log"
}

// Args formats the record as the engine command line, one key=value per
// argument in fixed key order.
func (p *Params) Args() []string {
	a := []string{
		str("srcCatName", p.SrcCatName),
		str("srcCatPrefix", p.SrcCatPrefix),
		str("srcCatQty", p.SrcCatQty),
		num("srcPosError", p.SrcPosError),
		str("cptCatName", p.CptCatName),
		str("cptCatPrefix", p.CptCatPrefix),
		str("cptCatQty", p.CptCatQty),
		num("cptPosError", p.CptPosError),
		str("cptDensFile", p.CptDensFile),
		str("outCatName", p.OutCatName),
	}
	for i, q := range p.OutCatQty {
		a = append(a, str(fmt.Sprintf("outCatQty%02d", i+1), q))
	}
	for i, s := range p.Select {
		a = append(a, str(fmt.Sprintf("select%02d", i+1), s))
	}
	return append(a,
		str("probMethod", p.ProbMethod),
		str("probPrior", p.ProbPrior),
		num("probThres", p.ProbThres),
		"maxNumCpt="+strconv.Itoa(p.MaxNumCpt),
		str("fom", p.FoM),
		"chatter="+strconv.Itoa(p.Chatter),
		"clobber="+yesNo(p.Clobber),
		"debug="+yesNo(p.Debug),
		"mode="+p.Mode,
	)
}

var quoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func str(key, v string) string {
	return key + `="` + quoter.Replace(v) + `"`
}

func num(key string, v float64) string {
	return key + "=" + strconv.FormatFloat(v, 'g', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Result is the outcome of an engine run.
type Result struct {
	ExitStatus int
	Log        string // engine log text
	LogPath    string // where the log was kept, empty if not written
}

// Err returns ErrInvocation for a non-zero exit status, nil otherwise.
func (r Result) Err() error {
	if r.ExitStatus == 0 {
		return nil
	}
	return fmt.Errorf("%w: exit status %d", ErrInvocation, r.ExitStatus)
}

// Engine runs the association for one parameter record.  A non-zero
// exit is reported in Result, not as an error; the error return is for
// an engine that could not be run at all.
type Engine interface {
	Run(ctx context.Context, p Params) (Result, error)
}

// Exec runs the engine as an external command.
type Exec struct {
	Command string // executable, DefaultCommand if empty
	Dir     string // working directory, current directory if empty
	LogFile string // log file the engine writes, DefaultLogFile if empty
	Log     *zap.SugaredLogger
}

var _ Engine = (*Exec)(nil)

func (e *Exec) Run(ctx context.Context, p Params) (Result, error) {
	command := e.Command
	if command == "" {
		command = DefaultCommand
	}
	args := p.Args()
	if e.Log != nil {
		e.Log.Debugw("engine", "command", command, "args", args)
	}
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = e.Dir
	out, err := cmd.CombinedOutput()
	var r Result
	if err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return r, fmt.Errorf("%w: %s: %v", ErrInvocation, command, err)
		}
		r.ExitStatus = ee.ExitCode() // -1 if killed by signal
	}

	logFile := e.LogFile
	if logFile == "" {
		logFile = DefaultLogFile
	}
	src := filepath.Join(e.Dir, logFile)
	dst := filepath.Join(e.Dir, p.LogName())
	if b, rerr := os.ReadFile(src); rerr == nil {
		r.Log = string(b)
		if err := os.Rename(src, dst); err != nil {
			return r, err
		}
	} else {
		r.Log = string(out)
		if err := os.WriteFile(dst, out, 0644); err != nil {
			return r, err
		}
	}
	r.LogPath = dst
	return r, nil
}
