package arq

import (
	"strings"
)

// DownshiftTable holds the fallback order for one TNC firmware family. Each
// chain lists modes from fastest to most robust.
type DownshiftTable struct {
	Version string
	ARQ     []string
	FEC     []string
}

var downshiftTables = []DownshiftTable{
	{
		Version: "ARDOP_Win",
		ARQ:     []string{"2000MAX", "1000MAX", "500MAX", "200MAX"},
		FEC: []string{
			"16QAM.2000.100", "8PSK.2000.100", "4PSK.2000.100",
			"8PSK.1000.100", "4PSK.1000.100", "4FSK.1000.100",
			"4PSK.500.100", "4FSK.500.100S", "4FSK.200.50S",
		},
	},
	{
		Version: "ardopc",
		ARQ:     []string{"2500MAX", "1000MAX", "500MAX", "200MAX"},
		FEC: []string{
			"8PSK.2000.100", "4PSK.2000.100", "4PSK.1000.100",
			"4FSK.1000.100", "4PSK.500.100", "4FSK.500.100S",
			"4FSK.200.50S",
		},
	},
	{
		Version: "ardop2",
		ARQ:     []string{"2500", "1000", "500", "200"},
		FEC: []string{
			"4PSK.2500.100", "4PSK.1000.100", "4PSK.500.100",
			"4FSK.500.50", "4FSK.200.50S",
		},
	},
}

var defaultDownshift = DownshiftTable{
	ARQ: []string{"2000MAX", "1000MAX", "500MAX", "200MAX"},
	FEC: []string{
		"4PSK.2000.100", "4PSK.1000.100", "4FSK.1000.100",
		"4PSK.500.100", "4FSK.500.100S", "4FSK.200.50S",
	},
}

// LookupDownshift returns the table whose version is the longest prefix of
// the TNC version string, or a generic table.
func LookupDownshift(version string) *DownshiftTable {
	best := -1
	for i, t := range downshiftTables {
		if strings.HasPrefix(version, t.Version) && (best < 0 || len(t.Version) > len(downshiftTables[best].Version)) {
			best = i
		}
	}
	if best < 0 {
		return &defaultDownshift
	}
	return &downshiftTables[best]
}

// NextARQ returns the next more robust ARQ bandwidth after cur.
func (t *DownshiftTable) NextARQ(cur string) (string, bool) {
	return next(t.ARQ, cur)
}

// NextFEC returns the next more robust FEC mode after cur.
func (t *DownshiftTable) NextFEC(cur string) (string, bool) {
	return next(t.FEC, cur)
}

// next returns the entry after cur. A mode missing from the chain steps
// straight to the most robust entry.
func next(chain []string, cur string) (string, bool) {
	for i, m := range chain {
		if strings.EqualFold(m, cur) {
			if i+1 < len(chain) {
				return chain[i+1], true
			}
			return "", false
		}
	}
	if len(chain) > 0 && !strings.EqualFold(chain[len(chain)-1], cur) {
		return chain[len(chain)-1], true
	}
	return "", false
}
