package etl

import (
	"fmt"
)

// TransformConfig is a declarative transform definition.
type TransformConfig struct {
	Type   string         `json:"type"` // "round" | "parse_number" | "scale" | "currency" | "rename" | "select" | "drop" | "type_cast"
	Config map[string]any `json:"config"`
}

type fieldConfig struct {
	Field       string  `json:"field"`
	TargetField string  `json:"targetField"`
	Places      *int    `json:"places"`
	Factor      float64 `json:"factor"`
	CastType    string  `json:"castType"`
}

type currencyConfig struct {
	Field     string             `json:"field"`
	RatesFile string             `json:"ratesFile"`
	Rates     map[string]float64 `json:"rates"`
	Targets   []CurrencyTarget   `json:"targets"`
	Places    *int               `json:"places"`
}

type fieldsConfig struct {
	Fields  []string          `json:"fields"`
	Mapping map[string]string `json:"mapping"`
}

const defaultPlaces = 2

func places(p *int) int {
	if p == nil {
		return defaultPlaces
	}
	return *p
}

// BuildTransformers converts declarative TransformConfig into Transformer
// instances. Invalid configuration is an error rather than a silent skip.
func BuildTransformers(configs []TransformConfig) ([]Transformer, error) {
	ts := make([]Transformer, 0, len(configs))

	for i, tc := range configs {
		t, err := buildTransformer(tc)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%s): %w", i, tc.Type, err)
		}
		ts = append(ts, t)
	}
	return ts, nil
}

func buildTransformer(tc TransformConfig) (Transformer, error) {
	raw := SourceConfig(tc.Config)

	switch tc.Type {
	case "round", "parse_number", "scale", "type_cast":
		var c fieldConfig
		if err := raw.Decode(&c); err != nil {
			return nil, err
		}
		if c.Field == "" {
			return nil, fmt.Errorf("field is required")
		}
		switch tc.Type {
		case "round":
			return &RoundTransform{Field: c.Field, Places: places(c.Places)}, nil
		case "parse_number":
			return &ParseNumberTransform{Field: c.Field}, nil
		case "scale":
			if c.Factor == 0 {
				return nil, fmt.Errorf("factor is required")
			}
			return &ScaleTransform{Field: c.Field, TargetField: c.TargetField, Factor: c.Factor, Places: places(c.Places)}, nil
		default:
			if c.CastType == "" {
				return nil, fmt.Errorf("castType is required")
			}
			return &TypeCastTransform{Field: c.Field, CastType: c.CastType}, nil
		}

	case "currency":
		var c currencyConfig
		if err := raw.Decode(&c); err != nil {
			return nil, err
		}
		if c.Field == "" || len(c.Targets) == 0 {
			return nil, fmt.Errorf("field and targets are required")
		}
		rates := RateTable(c.Rates)
		if c.RatesFile != "" {
			fileRates, err := ReadRateTable(c.RatesFile)
			if err != nil {
				return nil, err
			}
			for k, v := range c.Rates {
				fileRates[k] = v
			}
			rates = fileRates
		}
		if len(rates) == 0 {
			return nil, fmt.Errorf("ratesFile or rates is required")
		}
		return &CurrencyTransform{Field: c.Field, Rates: rates, Targets: c.Targets, Places: places(c.Places)}, nil

	case "rename":
		var c fieldsConfig
		if err := raw.Decode(&c); err != nil {
			return nil, err
		}
		if len(c.Mapping) == 0 {
			return nil, fmt.Errorf("mapping is required")
		}
		return &RenameTransform{Mapping: c.Mapping}, nil

	case "select", "drop":
		var c fieldsConfig
		if err := raw.Decode(&c); err != nil {
			return nil, err
		}
		if len(c.Fields) == 0 {
			return nil, fmt.Errorf("fields is required")
		}
		if tc.Type == "select" {
			return &SelectTransform{Fields: c.Fields}, nil
		}
		return &DropTransform{Fields: c.Fields}, nil

	default:
		return nil, fmt.Errorf("unknown transform type %q", tc.Type)
	}
}
