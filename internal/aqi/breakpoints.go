package aqi

// Standard index ranges shared by every table with seven bands.
var indexBands = [7][2]float64{
	{0, 50}, {51, 100}, {101, 150}, {151, 200}, {201, 300}, {301, 400}, {401, 500},
}

func sevenBand(conc [7][2]float64) Table {
	t := make(Table, 0, len(conc))
	for i, c := range conc {
		t = append(t, Band{ConcLow: c[0], ConcHigh: c[1], IndexLow: indexBands[i][0], IndexHigh: indexBands[i][1]})
	}
	return t
}

var tables = map[Pollutant]Table{
	PM25: sevenBand([7][2]float64{
		{0.0, 12.0}, {12.1, 35.4}, {35.5, 55.4}, {55.5, 150.4}, {150.5, 250.4}, {250.5, 350.4}, {350.5, 500.4},
	}),
	PM10: sevenBand([7][2]float64{
		{0, 54}, {55, 154}, {155, 254}, {255, 354}, {355, 424}, {425, 504}, {505, 604},
	}),
	NO2: sevenBand([7][2]float64{
		{0, 53}, {54, 100}, {101, 360}, {361, 649}, {650, 1249}, {1250, 1649}, {1650, 2049},
	}),
	SO2: sevenBand([7][2]float64{
		{0, 35}, {36, 75}, {76, 185}, {186, 304}, {305, 604}, {605, 804}, {805, 1004},
	}),
	CO: sevenBand([7][2]float64{
		{0.0, 4.4}, {4.5, 9.4}, {9.5, 12.4}, {12.5, 15.4}, {15.5, 30.4}, {30.5, 40.4}, {40.5, 50.4},
	}),
	// 8-hour ozone table, ppm.
	O3: {
		{ConcLow: 0.000, ConcHigh: 0.054, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 0.055, ConcHigh: 0.070, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 0.071, ConcHigh: 0.085, IndexLow: 101, IndexHigh: 150},
		{ConcLow: 0.086, ConcHigh: 0.105, IndexLow: 151, IndexHigh: 200},
		{ConcLow: 0.106, ConcHigh: 0.200, IndexLow: 201, IndexHigh: 300},
	},
}

// TableFor returns the breakpoint table of p.
func TableFor(p Pollutant) (Table, bool) {
	t, ok := tables[p]
	return t, ok
}
