// Public domain.

// Package srcclass holds source class configuration.
//
// A source class names one counterpart catalogue and the parameters the
// association engine uses for it.  Class files are YAML records decoded
// into File, where absent keys stay nil, and then resolved by Normalize
// into a Class with every default applied.
package srcclass

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfig reports a class record that cannot be used.
var ErrConfig = errors.New("invalid class configuration")

// Limits of the engine parameter interface.
const (
	MaxQuantities = 9
	MaxSelections = 9
)

// Defaults for optional keys.
const (
	DefaultProbMethod    = "PROB_POST"
	DefaultProbPrior     = "0.01"
	DefaultProbThres     = 0.50
	DefaultMaxCpt        = 1
	DefaultPositionError = 1. / 3600 // deg
	DefaultChatter       = 1
)

// Scalar is a YAML scalar kept as written.  The probability prior may be
// a number, a quoted number or a formula such as "nsrc() / ncpt()"; it is
// passed to the engine untouched.
type Scalar string

func (s *Scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: scalar expected", n.Line)
	}
	*s = Scalar(n.Value)
	return nil
}

// File is a class record as decoded.  Pointer fields are nil when the key
// is absent.
type File struct {
	CatID            string   `yaml:"catid"`
	CatName          string   `yaml:"catname"`
	Title            string   `yaml:"title"`
	Reference        string   `yaml:"reference"`
	URL              string   `yaml:"url"`
	ProbMethod       *string  `yaml:"prob_method"`
	ProbPrior        *Scalar  `yaml:"prob_prior"`
	ProbThres        *float64 `yaml:"prob_thres"`
	MaxCounterparts  *int     `yaml:"max_counterparts"`
	FigureOfMerit    string   `yaml:"figure_of_merit"`
	NewQuantity      []string `yaml:"new_quantity"`
	Selection        []string `yaml:"selection"`
	PositionError    *float64 `yaml:"position_error"`
	LatPositionError *float64 `yaml:"lat_position_error"`
	DensityMap       string   `yaml:"density_map"`
	Chatter          *int     `yaml:"chatter"`
	Verbose          bool     `yaml:"verbose"`
	Debug            bool     `yaml:"debug"`
}

// Class is a normalized source class.
type Class struct {
	ID        string // column prefix and output file stem
	CatName   string // counterpart catalogue file name as configured
	CatPath   string // resolved counterpart catalogue path
	Title     string
	Reference string
	URL       string

	ProbMethod string
	ProbPrior  string
	ProbThres  float64 // 0 defers to selections
	MaxCpt     int
	FoM        string

	Quantities [MaxQuantities]string
	Selections [MaxSelections]string

	PosError    float64 // counterpart position error, deg
	SrcPosError float64 // source position error override, deg; 0 uses catalogue
	DensityMap  string
	Chatter     int
	Verbose     bool
	Debug       bool
}

// Normalize applies defaults and resolves the catalogue and density map
// paths against catDir.  A record without catid or catname is ErrConfig.
func (f *File) Normalize(catDir string) (*Class, error) {
	id := strings.TrimSpace(f.CatID)
	if id == "" {
		return nil, fmt.Errorf("%w: no catid", ErrConfig)
	}
	name := strings.TrimSpace(f.CatName)
	if name == "" {
		return nil, fmt.Errorf("%w: class %s: no catname", ErrConfig, id)
	}
	c := &Class{
		ID:         id,
		CatName:    name,
		CatPath:    name,
		Title:      f.Title,
		Reference:  f.Reference,
		URL:        f.URL,
		ProbMethod: DefaultProbMethod,
		ProbPrior:  DefaultProbPrior,
		ProbThres:  DefaultProbThres,
		MaxCpt:     DefaultMaxCpt,
		FoM:        f.FigureOfMerit,
		PosError:   DefaultPositionError,
		DensityMap: f.DensityMap,
		Chatter:    DefaultChatter,
		Verbose:    f.Verbose,
		Debug:      f.Debug,
	}
	if !filepath.IsAbs(name) && catDir != "" {
		c.CatPath = filepath.Join(catDir, name)
	}
	if dm := c.DensityMap; dm != "" && !filepath.IsAbs(dm) && catDir != "" {
		c.DensityMap = filepath.Join(catDir, dm)
	}
	if c.Title == "" {
		c.Title = id
	}
	if f.ProbMethod != nil && *f.ProbMethod != "" {
		c.ProbMethod = *f.ProbMethod
	}
	if f.ProbPrior != nil && *f.ProbPrior != "" {
		c.ProbPrior = string(*f.ProbPrior)
	}
	if f.ProbThres != nil {
		if *f.ProbThres < 0 || *f.ProbThres > 1 {
			return nil, fmt.Errorf("%w: class %s: prob_thres %g out of range",
				ErrConfig, id, *f.ProbThres)
		}
		c.ProbThres = *f.ProbThres
	}
	if f.MaxCounterparts != nil {
		if *f.MaxCounterparts < 1 {
			return nil, fmt.Errorf("%w: class %s: max_counterparts %d < 1",
				ErrConfig, id, *f.MaxCounterparts)
		}
		c.MaxCpt = *f.MaxCounterparts
	}
	if f.PositionError != nil {
		c.PosError = *f.PositionError
	}
	if f.LatPositionError != nil {
		c.SrcPosError = *f.LatPositionError
	}
	if f.Chatter != nil {
		c.Chatter = *f.Chatter
	}
	if len(f.NewQuantity) > MaxQuantities {
		return nil, fmt.Errorf("%w: class %s: %d quantities, at most %d",
			ErrConfig, id, len(f.NewQuantity), MaxQuantities)
	}
	if len(f.Selection) > MaxSelections {
		return nil, fmt.Errorf("%w: class %s: %d selections, at most %d",
			ErrConfig, id, len(f.Selection), MaxSelections)
	}
	copy(c.Quantities[:], f.NewQuantity)
	copy(c.Selections[:], f.Selection)
	return c, nil
}

// OutCatName is the result catalogue file name written by the engine.
func (c *Class) OutCatName() string { return strings.ToLower(c.ID) + ".fits" }

// LogName is the file name the engine log is kept under.
func (c *Class) LogName() string { return strings.ToLower(c.ID) + ".log" }

// Source is one class file as loaded.  Err is set, and File nil, when the
// file could not be decoded.
type Source struct {
	Name string
	File *File
	Err  error
}

// Decode decodes one class record.
func Decode(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &f, nil
}

// LoadDir reads all *.yaml and *.yml class files in dir in file name
// order.  Files that fail to decode are returned with Err set so that
// the remaining classes can still be processed.
func LoadDir(dir string) ([]Source, error) {
	return load(os.DirFS(dir))
}

//go:embed classes/*.yaml
var defaults embed.FS

// Defaults returns the class set distributed with srcid.
func Defaults() []Source {
	sub, err := fs.Sub(defaults, "classes")
	if err != nil {
		panic(err)
	}
	s, err := load(sub)
	if err != nil {
		panic(err)
	}
	return s
}

func load(fsys fs.FS) ([]Source, error) {
	ents, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	s := make([]Source, len(names))
	for i, n := range names {
		s[i].Name = strings.TrimSuffix(n, filepath.Ext(n))
		b, err := fs.ReadFile(fsys, n)
		if err == nil {
			s[i].File, err = Decode(b)
		}
		if err != nil {
			s[i].Err = fmt.Errorf("%s: %w", n, err)
		}
	}
	return s, nil
}
