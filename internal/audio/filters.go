package audio

import (
	"strconv"
	"strings"
)

// Param is one filter option. An empty Key renders the value positionally.
type Param struct {
	Key   string
	Value string
}

// FilterSpec is a single filter with its options in order.
type FilterSpec struct {
	Name   string
	Params []Param
}

func (s FilterSpec) String() string {
	if len(s.Params) == 0 {
		return s.Name
	}
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		if p.Key == "" {
			parts[i] = p.Value
		} else {
			parts[i] = p.Key + "=" + p.Value
		}
	}
	return s.Name + "=" + strings.Join(parts, ":")
}

// FilterChain is an ordered filter graph applied left to right.
type FilterChain []FilterSpec

func (c FilterChain) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Filter builds a FilterSpec from alternating key/value strings.
func Filter(name string, kv ...string) FilterSpec {
	s := FilterSpec{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		s.Params = append(s.Params, Param{Key: kv[i], Value: kv[i+1]})
	}
	return s
}

// FormatFloat renders v with the shortest representation that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FilterID identifies a stage of the cleaning chain.
type FilterID string

const (
	FilterHighPass   FilterID = "highpass"
	FilterLowPass    FilterID = "lowpass"
	FilterDeclick    FilterID = "adeclick"
	FilterFFTDenoise FilterID = "afftdn"
	FilterDeesser    FilterID = "deesser"
	FilterCompand    FilterID = "compand"
	FilterDynNorm    FilterID = "dynaudnorm"
)

// CleaningOrder is the fixed order of the cleaning chain.
var CleaningOrder = []FilterID{
	FilterHighPass,
	FilterLowPass,
	FilterDeclick,
	FilterFFTDenoise,
	FilterDeesser,
	FilterCompand,
	FilterDynNorm,
}

type filterBuilderFunc func(*CleaningOptions) (FilterSpec, bool)

var filterBuilders = map[FilterID]filterBuilderFunc{
	FilterHighPass:   (*CleaningOptions).buildHighPass,
	FilterLowPass:    (*CleaningOptions).buildLowPass,
	FilterDeclick:    (*CleaningOptions).buildDeclick,
	FilterFFTDenoise: (*CleaningOptions).buildFFTDenoise,
	FilterDeesser:    (*CleaningOptions).buildDeesser,
	FilterCompand:    (*CleaningOptions).buildCompand,
	FilterDynNorm:    (*CleaningOptions).buildDynNorm,
}

// CleaningOptions configures the cleaning chain. Zero-valued cutoffs disable
// the corresponding filter.
type CleaningOptions struct {
	HighPassHz float64
	LowPassHz  float64
	Declick    bool

	// afftdn noise reduction in dB and optional noise floor in dB.
	NoiseReduction float64
	NoiseFloor     *float64

	// Deesser band (Hz) and intensity in [0,1].
	DeesserFreq      float64
	DeesserWidth     float64
	DeesserThreshold float64

	// Compand is a raw compand option string, omitted when empty.
	Compand string

	DynNormFrame    int
	DynNormGauss    int
	DynNormCompress float64
	DynNormTarget   float64
}

// BasicCleaning is the standard speech cleaning chain.
func BasicCleaning() CleaningOptions {
	return CleaningOptions{
		HighPassHz:       80,
		Declick:          true,
		NoiseReduction:   20,
		DeesserFreq:      6000,
		DeesserWidth:     4000,
		DeesserThreshold: 0.2,
		DynNormFrame:     200,
		DynNormGauss:     15,
	}
}

// EnhancedCleaning adds band limiting, stronger denoising and compression.
func EnhancedCleaning() CleaningOptions {
	nf := -20.0
	return CleaningOptions{
		HighPassHz:       80,
		LowPassHz:        8000,
		Declick:          true,
		NoiseReduction:   25,
		NoiseFloor:       &nf,
		DeesserFreq:      6000,
		DeesserWidth:     4000,
		DeesserThreshold: 0.15,
		Compand:          "attacks=0.1:decays=0.3:points=-80/-80|-40/-25|-10/-10|0/0:soft-knee=6:gain=0:volume=-45",
		DynNormFrame:     200,
		DynNormGauss:     15,
		DynNormCompress:  9,
		DynNormTarget:    0.95,
	}
}

// Chain renders the options into a filter chain in CleaningOrder.
func (o CleaningOptions) Chain() FilterChain {
	chain := make(FilterChain, 0, len(CleaningOrder))
	for _, id := range CleaningOrder {
		if spec, ok := filterBuilders[id](&o); ok {
			chain = append(chain, spec)
		}
	}
	return chain
}

func (o *CleaningOptions) buildHighPass() (FilterSpec, bool) {
	if o.HighPassHz <= 0 {
		return FilterSpec{}, false
	}
	return Filter("highpass", "f", FormatFloat(o.HighPassHz)), true
}

func (o *CleaningOptions) buildLowPass() (FilterSpec, bool) {
	if o.LowPassHz <= 0 {
		return FilterSpec{}, false
	}
	return Filter("lowpass", "f", FormatFloat(o.LowPassHz)), true
}

func (o *CleaningOptions) buildDeclick() (FilterSpec, bool) {
	return Filter("adeclick"), o.Declick
}

func (o *CleaningOptions) buildFFTDenoise() (FilterSpec, bool) {
	if o.NoiseReduction <= 0 {
		return FilterSpec{}, false
	}
	spec := Filter("afftdn", "nr", FormatFloat(o.NoiseReduction))
	if o.NoiseFloor != nil {
		spec.Params = append(spec.Params, Param{Key: "nf", Value: FormatFloat(*o.NoiseFloor)})
	}
	return spec, true
}

// buildDeesser maps the band onto ffmpeg's normalized deesser options. The
// lower band edge (centre - width/2) becomes f, relative to the 8 kHz Nyquist
// of the recognition rate.
func (o *CleaningOptions) buildDeesser() (FilterSpec, bool) {
	if o.DeesserThreshold <= 0 {
		return FilterSpec{}, false
	}
	f := 0.5
	if o.DeesserFreq > 0 {
		f = clamp((o.DeesserFreq-o.DeesserWidth/2)/8000, 0, 1)
	}
	return Filter("deesser",
		"i", FormatFloat(clamp(o.DeesserThreshold, 0, 1)),
		"m", "0.5",
		"f", FormatFloat(f),
	), true
}

func (o *CleaningOptions) buildCompand() (FilterSpec, bool) {
	if o.Compand == "" {
		return FilterSpec{}, false
	}
	return FilterSpec{Name: "compand", Params: []Param{{Value: o.Compand}}}, true
}

func (o *CleaningOptions) buildDynNorm() (FilterSpec, bool) {
	if o.DynNormFrame <= 0 {
		return FilterSpec{}, false
	}
	spec := Filter("dynaudnorm", "f", strconv.Itoa(o.DynNormFrame))
	if o.DynNormGauss > 0 {
		spec.Params = append(spec.Params, Param{Key: "g", Value: strconv.Itoa(o.DynNormGauss)})
	}
	if o.DynNormCompress > 0 {
		spec.Params = append(spec.Params, Param{Key: "s", Value: FormatFloat(o.DynNormCompress)})
	}
	if o.DynNormTarget > 0 {
		spec.Params = append(spec.Params, Param{Key: "r", Value: FormatFloat(o.DynNormTarget)})
	}
	return spec, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
