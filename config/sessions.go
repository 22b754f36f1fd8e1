package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradeguard/internal/domain"
)

// defaultPointSizes maps symbols onto point sizes used for spread measurement.
// One point is the smallest quoted price increment for the instrument.
var defaultPointSizes = map[string]float64{
	"BTCUSDT": 0.1,
	"ETHUSDT": 0.01,
	"LTCUSDT": 0.01,
	"EURUSD":  0.00001,
	"GBPUSD":  0.00001,
	"USDJPY":  0.001,
	"USDCHF":  0.00001,
	"USDCAD":  0.00001,
	"AUDUSD":  0.00001,
	"NZDUSD":  0.00001,
	"XAUUSD":  0.01,
	"XAGUSD":  0.001,
}

// defaultWindowSpecs is the built-in session catalog. Start/end times can be
// overridden per window through the named environment keys; symbol assignments
// can only be changed through SESSIONS_FILE.
var defaultWindowSpecs = []struct {
	name     string
	category domain.MarketCategory
	startKey string
	endKey   string
	start    string
	end      string
	symbols  []string
}{
	{"FOREX_ASIA", domain.CategoryForex, "FOREX_ASIA_SESSION_START", "FOREX_ASIA_SESSION_END", "22:00", "08:00", []string{"USDJPY", "AUDUSD", "NZDUSD"}},
	{"FOREX_EUROPE", domain.CategoryForex, "FOREX_EUROPE_SESSION_START", "FOREX_EUROPE_SESSION_END", "07:00", "16:00", []string{"EURUSD", "GBPUSD", "USDCHF"}},
	{"FOREX_AMERICA", domain.CategoryForex, "FOREX_AMERICA_SESSION_START", "FOREX_AMERICA_SESSION_END", "13:00", "22:00", []string{"EURUSD", "GBPUSD", "USDCAD"}},
	{"COMMODITY_GOLD", domain.CategoryCommodity, "COMMODITY_GOLD_SESSION_START", "COMMODITY_GOLD_SESSION_END", "23:00", "22:00", []string{"XAUUSD"}},
	{"COMMODITY_SILVER", domain.CategoryCommodity, "COMMODITY_SILVER_SESSION_START", "COMMODITY_SILVER_SESSION_END", "23:00", "22:00", []string{"XAGUSD"}},
	{"CRYPTO_24_7", domain.CategoryCrypto, "CRYPTO_SESSION_START", "CRYPTO_SESSION_END", "00:00", "00:00", []string{"BTCUSDT", "ETHUSDT", "LTCUSDT"}},
}

// loadSessionWindows builds the session catalog: built-in windows with their
// env time overrides applied, then merged with the optional SESSIONS_FILE.
// Windows from the file replace same-named built-ins and otherwise append.
func loadSessionWindows(filePath string, errs *[]string) []domain.SessionWindow {
	windows := make([]domain.SessionWindow, 0, len(defaultWindowSpecs))
	for _, spec := range defaultWindowSpecs {
		start, err := domain.ParseClockTime(getEnv(spec.startKey, spec.start))
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid %s: %v", spec.startKey, err))
			continue
		}
		end, err := domain.ParseClockTime(getEnv(spec.endKey, spec.end))
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid %s: %v", spec.endKey, err))
			continue
		}
		windows = append(windows, domain.SessionWindow{
			Name:     spec.name,
			Category: spec.category,
			Start:    start,
			End:      end,
			Symbols:  spec.symbols,
		})
	}

	if filePath == "" {
		return windows
	}
	fileWindows, err := loadSessionsFile(filePath)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid SESSIONS_FILE: %v", err))
		return windows
	}
	return mergeWindows(windows, fileWindows)
}

// sessionsFile is the YAML document shape accepted by SESSIONS_FILE.
type sessionsFile struct {
	Sessions []struct {
		Name     string   `yaml:"name"`
		Category string   `yaml:"category"`
		Start    string   `yaml:"start"`
		End      string   `yaml:"end"`
		Symbols  []string `yaml:"symbols"`
	} `yaml:"sessions"`
}

func loadSessionsFile(path string) ([]domain.SessionWindow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc sessionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	windows := make([]domain.SessionWindow, 0, len(doc.Sessions))
	for i, entry := range doc.Sessions {
		if entry.Name == "" {
			return nil, fmt.Errorf("session %d: name must be set", i)
		}
		category, err := domain.ParseMarketCategory(entry.Category)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", entry.Name, err)
		}
		start, err := domain.ParseClockTime(entry.Start)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", entry.Name, err)
		}
		end, err := domain.ParseClockTime(entry.End)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", entry.Name, err)
		}
		if len(entry.Symbols) == 0 {
			return nil, fmt.Errorf("session %s: symbols must list at least one symbol", entry.Name)
		}
		windows = append(windows, domain.SessionWindow{
			Name:     entry.Name,
			Category: category,
			Start:    start,
			End:      end,
			Symbols:  entry.Symbols,
		})
	}
	return windows, nil
}

func mergeWindows(base, overrides []domain.SessionWindow) []domain.SessionWindow {
	merged := make([]domain.SessionWindow, len(base))
	copy(merged, base)
	for _, override := range overrides {
		replaced := false
		for i := range merged {
			if merged[i].Name == override.Name {
				merged[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, override)
		}
	}
	return merged
}
