package triage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	inventoryColumns = []string{"region", "facility", "category", "available stock"}
	costColumns      = []string{"region", "facility", "category", "base cost", "nhif covered", "insurance co-pay", "out of pocket"}
)

// ParseInventoryCSV reads rows with the header
// "region,facility,category,available stock". Column order is free and
// header names are matched case-insensitively.
func ParseInventoryCSV(r io.Reader) ([]InventoryItem, error) {
	var items []InventoryItem
	err := readCatalogCSV(r, inventoryColumns, func(line int, get func(string) string) error {
		stock, err := parseNumber(get("available stock"))
		if err != nil {
			return fmt.Errorf("line %d: available stock: %w", line, err)
		}
		items = append(items, InventoryItem{
			Region:         get("region"),
			Facility:       get("facility"),
			Category:       get("category"),
			AvailableStock: int(stock),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory csv: %w", err)
	}
	return items, nil
}

// ParseCostsCSV reads rows with the header
// "region,facility,category,base cost,NHIF covered,insurance co-pay,out of pocket".
func ParseCostsCSV(r io.Reader) ([]CostEntry, error) {
	var entries []CostEntry
	err := readCatalogCSV(r, costColumns, func(line int, get func(string) string) error {
		var vals [4]float64
		for i, col := range costColumns[3:] {
			v, err := parseNumber(get(col))
			if err != nil {
				return fmt.Errorf("line %d: %s: %w", line, col, err)
			}
			vals[i] = v
		}
		entries = append(entries, CostEntry{
			Region:         get("region"),
			Facility:       get("facility"),
			Category:       get("category"),
			BaseCost:       vals[0],
			NHIFCovered:    vals[1],
			InsuranceCoPay: vals[2],
			OutOfPocket:    vals[3],
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("costs csv: %w", err)
	}
	return entries, nil
}

func readCatalogCSV(r io.Reader, required []string, row func(line int, get func(string) string) error) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("missing header")
		}
		return err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("missing column %q", col)
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		get := func(col string) string {
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if get("region") == "" || get("facility") == "" || get("category") == "" {
			return fmt.Errorf("line %d: region, facility and category are required", line)
		}
		if err := row(line, get); err != nil {
			return err
		}
	}
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// breakdownFor builds the cost split shown to a patient. Insured patients pay
// the insurance co-pay; uninsured patients pay the out-of-pocket amount.
func breakdownFor(entry *CostEntry, insured bool) CostBreakdown {
	if entry == nil {
		return CostBreakdown{Error: "Cost data not available for this facility/treatment"}
	}
	base := entry.BaseCost
	nhif := entry.NHIFCovered
	var coPay, outOfPocket float64
	if insured {
		coPay = entry.InsuranceCoPay
	} else {
		outOfPocket = entry.OutOfPocket
	}
	return CostBreakdown{
		BaseCost:    &base,
		NHIF:        &nhif,
		CoPay:       &coPay,
		OutOfPocket: &outOfPocket,
	}
}
