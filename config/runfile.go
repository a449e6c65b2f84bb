package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"perpBacktester/internal/domain"
	"perpBacktester/internal/ports"
	"perpBacktester/internal/sizing"
	"perpBacktester/internal/strategy/backtesting"
	"perpBacktester/internal/strategy/optimization"
)

// Sizing methods accepted in a run file.
const (
	SizingEquity           = "equity"
	SizingFixedFraction    = "fixed_fraction"
	SizingKelly            = "kelly"
	SizingVolatilityTarget = "volatility_target"
)

// RunFile describes one backtest or sweep. Unset backtest fields keep the environment defaults.
type RunFile struct {
	Strategy   string             `yaml:"strategy"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	Symbol     string             `yaml:"symbol,omitempty"`
	Interval   string             `yaml:"interval,omitempty"`
	Data       string             `yaml:"data,omitempty"` // CSV bar file
	Backtest   BacktestSection    `yaml:"backtest,omitempty"`
	Sizing     SizingSection      `yaml:"sizing,omitempty"`
	Sweep      []SweepRange       `yaml:"sweep,omitempty"`
	Folds      int                `yaml:"folds,omitempty"`
	TrainRatio float64            `yaml:"train_ratio,omitempty"`
}

// BacktestSection overrides engine parameters.
type BacktestSection struct {
	InitialCapital        *float64 `yaml:"initial_capital,omitempty"`
	LeverageCap           *float64 `yaml:"leverage_cap,omitempty"`
	Leverage              *float64 `yaml:"leverage,omitempty"`
	MakerFeePct           *float64 `yaml:"maker_fee_pct,omitempty"`
	TakerFeePct           *float64 `yaml:"taker_fee_pct,omitempty"`
	SlippagePct           *float64 `yaml:"slippage_pct,omitempty"`
	MaintenanceMarginRate *float64 `yaml:"maintenance_margin_rate,omitempty"`
	PeriodsPerYear        *float64 `yaml:"periods_per_year,omitempty"`
	Execution             string   `yaml:"execution,omitempty"` // maker or taker
	VolatilityLookback    int      `yaml:"volatility_lookback,omitempty"`
}

// SizingSection selects the engine's sizing function.
type SizingSection struct {
	Method           string  `yaml:"method,omitempty"`
	Fraction         float64 `yaml:"fraction,omitempty"`
	WinRate          float64 `yaml:"win_rate,omitempty"`
	AvgWin           float64 `yaml:"avg_win,omitempty"`
	AvgLoss          float64 `yaml:"avg_loss,omitempty"`
	KellyCap         float64 `yaml:"kelly_cap,omitempty"`
	TargetVolatility float64 `yaml:"target_volatility,omitempty"`
}

// SweepRange is one optimizer grid dimension.
type SweepRange struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
	Int  bool    `yaml:"int,omitempty"`
}

// LoadRunFile reads and validates a YAML run definition.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return ParseRunFile(data)
}

// ParseRunFile decodes a YAML run definition. Unknown keys are rejected.
func ParseRunFile(data []byte) (*RunFile, error) {
	rf := &RunFile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(rf); err != nil {
		return nil, fmt.Errorf("%w: parse run file: %v", ports.ErrConfigurationError, err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Validate checks the parts of the run file the engine does not validate itself.
func (rf *RunFile) Validate() error {
	var errs []string
	if rf.Strategy == "" {
		errs = append(errs, "strategy is required")
	}
	switch rf.Backtest.Execution {
	case "", string(domain.ExecutionMaker), string(domain.ExecutionTaker):
	default:
		errs = append(errs, fmt.Sprintf("backtest.execution must be maker or taker, got %q", rf.Backtest.Execution))
	}
	switch rf.Sizing.Method {
	case "", SizingEquity, SizingFixedFraction, SizingKelly, SizingVolatilityTarget:
	default:
		errs = append(errs, fmt.Sprintf("unknown sizing.method %q", rf.Sizing.Method))
	}
	seen := make(map[string]bool, len(rf.Sweep))
	for _, r := range rf.Sweep {
		if r.Name == "" {
			errs = append(errs, "sweep ranges need a name")
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Sprintf("sweep parameter %s listed twice", r.Name))
		}
		seen[r.Name] = true
	}
	if rf.Folds < 0 {
		errs = append(errs, "folds cannot be negative")
	}
	if rf.TrainRatio < 0 || rf.TrainRatio >= 1 {
		errs = append(errs, "train_ratio must be in [0, 1)")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: invalid run file: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return nil
}

// Apply overlays the run file on base and installs the selected sizer.
func (rf *RunFile) Apply(base backtesting.Config) (backtesting.Config, error) {
	cfg := base
	b := rf.Backtest
	for _, o := range []struct {
		src *float64
		dst *float64
	}{
		{b.InitialCapital, &cfg.InitialCapital},
		{b.LeverageCap, &cfg.LeverageCap},
		{b.Leverage, &cfg.Leverage},
		{b.MakerFeePct, &cfg.MakerFeePct},
		{b.TakerFeePct, &cfg.TakerFeePct},
		{b.SlippagePct, &cfg.SlippagePct},
		{b.MaintenanceMarginRate, &cfg.MaintenanceMarginRate},
		{b.PeriodsPerYear, &cfg.PeriodsPerYear},
	} {
		if o.src != nil {
			*o.dst = *o.src
		}
	}
	if b.Execution != "" {
		cfg.Execution = domain.ExecutionType(b.Execution)
	}
	if b.VolatilityLookback > 0 {
		cfg.VolatilityLookback = b.VolatilityLookback
	}

	sizer, err := rf.Sizing.Func()
	if err != nil {
		return backtesting.Config{}, err
	}
	cfg.Sizer = sizer
	return cfg, nil
}

// Func builds the sizing function the section describes.
func (s SizingSection) Func() (sizing.Func, error) {
	switch s.Method {
	case "", SizingEquity:
		return sizing.EquityMultiple(), nil
	case SizingFixedFraction:
		if s.Fraction <= 0 || s.Fraction > 1 {
			return nil, fmt.Errorf("%w: sizing.fraction must be in (0, 1]", ports.ErrConfigurationError)
		}
		return sizing.FixedFractionOf(s.Fraction), nil
	case SizingKelly:
		if s.AvgWin <= 0 || s.AvgLoss <= 0 || s.WinRate < 0 || s.WinRate > 1 {
			return nil, fmt.Errorf("%w: kelly sizing needs win_rate in [0, 1] and positive avg_win/avg_loss", ports.ErrConfigurationError)
		}
		kellyCap := s.KellyCap
		if kellyCap <= 0 {
			kellyCap = 0.25
		}
		return sizing.Kelly(s.WinRate, s.AvgWin, s.AvgLoss, kellyCap), nil
	case SizingVolatilityTarget:
		if s.TargetVolatility <= 0 {
			return nil, fmt.Errorf("%w: sizing.target_volatility must be positive", ports.ErrConfigurationError)
		}
		return sizing.VolatilityTarget(s.TargetVolatility), nil
	default:
		return nil, fmt.Errorf("%w: unknown sizing method %q", ports.ErrConfigurationError, s.Method)
	}
}

// ParameterRanges converts the sweep section, sorted by name for a stable grid order.
func (rf *RunFile) ParameterRanges() []optimization.ParameterRange {
	ranges := make([]optimization.ParameterRange, 0, len(rf.Sweep))
	for _, r := range rf.Sweep {
		ranges = append(ranges, optimization.ParameterRange{
			Name:  r.Name,
			Min:   r.Min,
			Max:   r.Max,
			Step:  r.Step,
			IsInt: r.Int,
		})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Name < ranges[j].Name })
	return ranges
}
