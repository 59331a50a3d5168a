// Package weather is the sample application tool used by the two-turn
// weather scenario. It does not call a real weather service.
package weather

import (
	"context"

	"github.com/picatz/apistyles/internal/tools"
)

// Name of the tool as the model sees it.
const Name = "get_weather"

// Args are the arguments the model supplies.
type Args struct {
	City string `json:"city" jsonschema:"city name, for example Paris"`
}

// Report is the tool result.
type Report struct {
	City      string `json:"city"`
	TempC     int    `json:"temp_c"`
	Condition string `json:"condition"`
}

// Lookup pretends to ask a weather service about city.
func Lookup(_ context.Context, args Args) (any, error) {
	return Report{City: args.City, TempC: 17, Condition: "rain"}, nil
}

// Tool returns the get_weather tool.
func Tool() *tools.Tool {
	t, err := tools.NewTool(Name, "Get current weather by city.", Lookup)
	if err != nil {
		panic(err)
	}
	return t
}
