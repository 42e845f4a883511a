package export

import (
	"fmt"
	"strings"

	"github.com/derickschaefer/gridfetch/internal/model"
)

// PSRTypeNames maps production source codes to column-name fragments.
var PSRTypeNames = map[string]string{
	"B01": "Biomass",
	"B02": "Lignite",
	"B03": "CoalGas",
	"B04": "FossilGas",
	"B05": "HardCoal",
	"B06": "FossilOil",
	"B07": "OilShale",
	"B08": "Peat",
	"B09": "Geothermal",
	"B10": "HydroPumped",
	"B11": "HydroRunOfRiver",
	"B12": "HydroReservoir",
	"B13": "Marine",
	"B14": "Nuclear",
	"B15": "OtherRenewable",
	"B16": "Solar",
	"B17": "Waste",
	"B18": "WindOffshore",
	"B19": "WindOnshore",
	"B20": "Other",
}

// BusinessTypeNames maps business type codes to column-name fragments.
var BusinessTypeNames = map[string]string{
	"A01": "Production",
	"A04": "Consumption",
	"A14": "AggregatedBids",
	"A37": "InstalledCapacity",
	"A62": "Price",
	"A66": "PhysicalFlow",
	"B08": "NominatedCapacity",
	"B10": "CongestionIncome",
	"B33": "ACE",
}

// flowUp is the flowDirection code rendered as "Up"; every other code is "Down".
const flowUp = "A01"

const domainSuffixLen = 7

// ColumnName composes the column name of ts:
// source or business name, flow direction, domain pair, unit or currency.
// index is used only when none of those are present.
func ColumnName(ts model.TimeSeries, index int) string {
	var parts []string

	switch {
	case ts.PsrType != "":
		parts = append(parts, lookup(PSRTypeNames, ts.PsrType))
	case ts.BusinessType != "":
		parts = append(parts, lookup(BusinessTypeNames, ts.BusinessType))
	}

	if ts.FlowDirection != "" {
		if ts.FlowDirection == flowUp {
			parts = append(parts, "Up")
		} else {
			parts = append(parts, "Down")
		}
	}

	if ts.InDomain != "" && ts.OutDomain != "" {
		parts = append(parts, shortDomain(ts.OutDomain)+"_to_"+shortDomain(ts.InDomain))
	}

	switch {
	case ts.Unit != "":
		parts = append(parts, ts.Unit)
	case ts.Currency != "":
		parts = append(parts, ts.Currency)
	}

	if len(parts) == 0 {
		return fmt.Sprintf("series_%d", index)
	}
	return strings.Join(parts, "_")
}

func lookup(table map[string]string, code string) string {
	if name, ok := table[code]; ok {
		return name
	}
	return code
}

func shortDomain(code string) string {
	if len(code) <= domainSuffixLen {
		return code
	}
	return code[len(code)-domainSuffixLen:]
}

// uniqueNames assigns a column name to every series, suffixing _1, _2, ...
// onto names already taken. The result is aligned with series.
func uniqueNames(series []model.TimeSeries) []string {
	used := map[string]bool{TimestampColumn: true}
	names := make([]string, len(series))
	for i, ts := range series {
		base := ColumnName(ts, i)
		name := base
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}
