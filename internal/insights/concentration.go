package insights

// GroupShare is one subchannel's share of the avoided volume.
type GroupShare struct {
	Name  string  `json:"name"`
	Share float64 `json:"share"`
	Total int64   `json:"total"`
}

// Concentration reports Top-N share and HHI of the avoided volume across
// the subchannels of a ranking.
type Concentration struct {
	TopN       int          `json:"top_n"`
	Groups     []GroupShare `json:"groups"`
	OtherShare float64      `json:"other_share"`
	HHI        float64      `json:"hhi"`
	Band       string       `json:"band"`
}

// Concentrate computes share distribution and HHI over r. topN outside
// 1..10 defaults to 5. A zero total yields band "none".
func Concentrate(r Ranking, topN int) Concentration {
	out := Concentration{TopN: topN, Groups: []GroupShare{}}
	if out.TopN <= 0 || out.TopN > 10 {
		out.TopN = 5
	}
	if r.TotalAvoided <= 0 {
		out.Band = "none"
		return out
	}
	total := float64(r.TotalAvoided)

	keep := out.TopN
	if keep > len(r.Rows) {
		keep = len(r.Rows)
	}
	var topShare float64
	for i := 0; i < keep; i++ {
		sh := float64(r.Rows[i].AvoidedContactVolume) / total
		out.Groups = append(out.Groups, GroupShare{Name: r.Rows[i].Subchannel, Share: round3(sh), Total: r.Rows[i].AvoidedContactVolume})
		topShare += sh
	}
	out.OtherShare = round3(1.0 - topShare)

	// HHI: sum of squared shares over all groups
	var hhi float64
	for _, row := range r.Rows {
		sh := float64(row.AvoidedContactVolume) / total
		hhi += sh * sh
	}
	out.HHI = round3(hhi)
	// Bands based on common antitrust thresholds
	switch {
	case hhi < 0.15:
		out.Band = "unconcentrated"
	case hhi < 0.25:
		out.Band = "moderately_concentrated"
	default:
		out.Band = "highly_concentrated"
	}
	return out
}
