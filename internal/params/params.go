// Package params holds the fixed business parameters of the calculator:
// retention by tribe, conversion rate by segment and the fallback ratios.
// A Params value is immutable after construction and is passed explicitly
// to every component that needs it.
package params

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/textnorm"
	"github.com/vinodismyname/crcalc/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Tribe labels with a measured retention.
const (
	TribeApp = "App"
	TribeBot = "Bot"
	TribeWeb = "Web"
)

// ErrInvalid is returned when a parameter set fails validation.
var ErrInvalid = errors.New("params: invalid parameters")

// File is the YAML shape of a parameters file. Omitted fields keep their
// built-in defaults; map entries are merged over the defaults by
// normalized key.
//
//	retention_by_tribe:
//	  App: 0.9169
//	  Bot: 0.8835
//	  Web: 0.9027
//	conversion_rate_by_segment:
//	  Móvel: 0.4947
//	  Residencial: 0.4989
//	default_unique_user_ratio: 12.28
//	default_conversion_rate: 0.5
type File struct {
	RetentionByTribe        map[string]float64 `yaml:"retention_by_tribe" validate:"omitempty,dive,keys,required,endkeys,gte=0,lte=1"`
	ConversionRateBySegment map[string]float64 `yaml:"conversion_rate_by_segment" validate:"omitempty,dive,keys,required,endkeys,gte=0,lte=1"`
	DefaultUniqueUserRatio  *float64           `yaml:"default_unique_user_ratio" validate:"omitempty,gt=0"`
	DefaultConversionRate   *float64           `yaml:"default_conversion_rate" validate:"omitempty,gte=0,lte=1"`
}

type entry struct {
	label string
	value float64
}

// Params is the immutable parameter set.
type Params struct {
	retention              map[string]entry
	conversion             map[string]entry
	defaultUniqueUserRatio float64
	defaultConversionRate  float64
	source                 string
}

// Default returns the built-in parameter set.
func Default() *Params {
	p, err := build(defaultFile(), "builtin")
	if err != nil {
		panic(err) // built-in values are valid
	}
	return p
}

func defaultFile() File {
	uu := config.DefaultUniqueUserRatio
	cr := config.DefaultConversionRate
	return File{
		RetentionByTribe: map[string]float64{
			TribeApp: config.DefaultRetentionApp,
			TribeBot: config.DefaultRetentionBot,
			TribeWeb: config.DefaultRetentionWeb,
		},
		ConversionRateBySegment: map[string]float64{
			"Móvel":       config.DefaultConversionMobile,
			"Residencial": config.DefaultConversionResidential,
		},
		DefaultUniqueUserRatio: &uu,
		DefaultConversionRate:  &cr,
	}
}

// New builds a parameter set from f merged over the built-in defaults.
func New(f File) (*Params, error) {
	return fromFile(f, "inline")
}

// LoadFile reads a YAML parameters file and merges it over the built-in
// defaults.
func LoadFile(path string) (*Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("params: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("params: parse %s: %w", path, err)
	}
	return fromFile(f, path)
}

func fromFile(f File, source string) (*Params, error) {
	if err := checkDuplicates("retention_by_tribe", f.RetentionByTribe); err != nil {
		return nil, err
	}
	if err := checkDuplicates("conversion_rate_by_segment", f.ConversionRateBySegment); err != nil {
		return nil, err
	}
	return build(merge(defaultFile(), f), source)
}

// checkDuplicates rejects keys of m that normalize to the same label, such
// as "App" and "app".
func checkDuplicates(field string, m map[string]float64) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	seen := make(map[string]string, len(keys))
	for _, k := range keys {
		norm := textnorm.Normalize(k)
		if prev, ok := seen[norm]; ok {
			return fmt.Errorf("%w: %s has duplicate keys %q and %q", ErrInvalid, field, prev, k)
		}
		seen[norm] = k
	}
	return nil
}

func merge(base, over File) File {
	out := File{
		RetentionByTribe:        mergeMap(base.RetentionByTribe, over.RetentionByTribe),
		ConversionRateBySegment: mergeMap(base.ConversionRateBySegment, over.ConversionRateBySegment),
		DefaultUniqueUserRatio:  base.DefaultUniqueUserRatio,
		DefaultConversionRate:   base.DefaultConversionRate,
	}
	if over.DefaultUniqueUserRatio != nil {
		out.DefaultUniqueUserRatio = over.DefaultUniqueUserRatio
	}
	if over.DefaultConversionRate != nil {
		out.DefaultConversionRate = over.DefaultConversionRate
	}
	return out
}

// mergeMap overlays over on base; an override replaces every base entry
// sharing its normalized key.
func mergeMap(base, over map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		for bk := range out {
			if textnorm.Equal(bk, k) {
				delete(out, bk)
			}
		}
		out[k] = v
	}
	return out
}

func build(f File, source string) (*Params, error) {
	if err := validation.Validator().Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p := &Params{
		retention:  index(f.RetentionByTribe),
		conversion: index(f.ConversionRateBySegment),
		source:     source,
	}
	if f.DefaultUniqueUserRatio != nil {
		p.defaultUniqueUserRatio = *f.DefaultUniqueUserRatio
	}
	if f.DefaultConversionRate != nil {
		p.defaultConversionRate = *f.DefaultConversionRate
	}
	if p.defaultUniqueUserRatio <= 0 {
		return nil, fmt.Errorf("%w: default_unique_user_ratio must be > 0", ErrInvalid)
	}
	// Dma and unknown tribes resolve through Bot and Web.
	for _, tribe := range []string{TribeBot, TribeWeb} {
		if _, ok := p.retention[textnorm.Normalize(tribe)]; !ok {
			return nil, fmt.Errorf("%w: retention_by_tribe must define %s", ErrInvalid, tribe)
		}
	}
	return p, nil
}

func index(m map[string]float64) map[string]entry {
	out := make(map[string]entry, len(m))
	for k, v := range m {
		key := textnorm.Normalize(k)
		if key == "" {
			continue
		}
		out[key] = entry{label: strings.TrimSpace(k), value: v}
	}
	return out
}

// Retention returns the measured retention of tribe, matched by normalized
// label.
func (p *Params) Retention(tribe string) (float64, bool) {
	e, ok := p.retention[textnorm.Normalize(tribe)]
	return e.value, ok
}

// ConversionRate returns the conversion rate of segment, or the default
// conversion rate when the segment has none.
func (p *Params) ConversionRate(segment string) float64 {
	if e, ok := p.conversion[textnorm.Normalize(segment)]; ok {
		return e.value
	}
	return p.defaultConversionRate
}

// DefaultUniqueUserRatio is the transactions per unique user used when no
// data tier yields a ratio.
func (p *Params) DefaultUniqueUserRatio() float64 { return p.defaultUniqueUserRatio }

// DefaultConversionRate is the conversion rate of segments without one.
func (p *Params) DefaultConversionRate() float64 { return p.defaultConversionRate }

// Source names where the parameters came from.
func (p *Params) Source() string { return p.source }

// Rate is a labeled parameter value.
type Rate struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Snapshot is a serializable copy of a parameter set.
type Snapshot struct {
	Source                  string  `json:"source"`
	RetentionByTribe        []Rate  `json:"retention_by_tribe"`
	ConversionRateBySegment []Rate  `json:"conversion_rate_by_segment"`
	DefaultUniqueUserRatio  float64 `json:"default_unique_user_ratio"`
	DefaultConversionRate   float64 `json:"default_conversion_rate"`
	DmaRetentionTribe       string  `json:"dma_retention_tribe"`
	UnknownRetentionTribe   string  `json:"unknown_retention_tribe"`
	MinTransactionsPerAcc   float64 `json:"min_transactions_per_access"`
}

// Snapshot returns the parameters with labels sorted by normalized key.
func (p *Params) Snapshot() Snapshot {
	return Snapshot{
		Source:                  p.source,
		RetentionByTribe:        rates(p.retention),
		ConversionRateBySegment: rates(p.conversion),
		DefaultUniqueUserRatio:  p.defaultUniqueUserRatio,
		DefaultConversionRate:   p.defaultConversionRate,
		DmaRetentionTribe:       TribeBot,
		UnknownRetentionTribe:   TribeWeb,
		MinTransactionsPerAcc:   config.MinTransactionsPerAccess,
	}
}

func rates(m map[string]entry) []Rate {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Rate, 0, len(keys))
	for _, k := range keys {
		out = append(out, Rate{Label: m[k].label, Value: m[k].value})
	}
	return out
}
