package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/till/internal/models"
)

// parseItem parses "Name:weight:pricePerKg". The name may itself contain
// colons; the last two fields are numbers.
func parseItem(s string) (models.CartLine, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return models.CartLine{}, fmt.Errorf("item %q: want Name:weight:pricePerKg", s)
	}
	n := len(parts)
	name := strings.TrimSpace(strings.Join(parts[:n-2], ":"))
	weight, err := strconv.ParseFloat(strings.TrimSpace(parts[n-2]), 64)
	if err != nil {
		return models.CartLine{}, fmt.Errorf("item %q: bad weight %q", s, parts[n-2])
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[n-1]), 64)
	if err != nil {
		return models.CartLine{}, fmt.Errorf("item %q: bad price %q", s, parts[n-1])
	}
	line := models.NewCartLine(name, weight, price)
	if err := line.Validate(); err != nil {
		return models.CartLine{}, err
	}
	return line, nil
}

// parseItems parses every --item value.
func parseItems(values []string) ([]models.CartLine, error) {
	lines := make([]models.CartLine, 0, len(values))
	for _, v := range values {
		line, err := parseItem(v)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// parseFields parses repeated k=v flags into a document patch. Values that
// look like numbers are sent as numbers.
func parseFields(values []string) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("field %q: want key=value", v)
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			out[k] = f
			continue
		}
		out[k] = val
	}
	return out, nil
}
