package insights

import (
	"sort"

	"github.com/vinodismyname/crcalc/internal/textnorm"
)

// TribeMix is one tribe's share of the avoided volume, overall and inside
// the priority subset.
type TribeMix struct {
	Tribe         string  `json:"tribe"`
	Subchannels   int     `json:"subchannels"`
	Avoided       int64   `json:"avoided_volume"`
	Share         float64 `json:"share"`
	PriorityCount int     `json:"priority_count"`
	PriorityShare float64 `json:"priority_share"`
}

// Compose groups a ranking by tribe. Shares are 0 when the relevant total
// is 0. Tribes are ordered by avoided volume descending, then by name.
func Compose(r Ranking) []TribeMix {
	byKey := map[string]*TribeMix{}
	var order []string
	prio := map[string]int64{}
	var priorityTotal int64
	for _, row := range r.Rows {
		k := textnorm.Normalize(row.Tribe)
		m, ok := byKey[k]
		if !ok {
			m = &TribeMix{Tribe: row.Tribe}
			byKey[k] = m
			order = append(order, k)
		}
		m.Subchannels++
		m.Avoided += row.AvoidedContactVolume
		if row.Priority {
			m.PriorityCount++
			prio[k] += row.AvoidedContactVolume
			priorityTotal += row.AvoidedContactVolume
		}
	}

	out := make([]TribeMix, 0, len(order))
	for _, k := range order {
		m := byKey[k]
		if r.TotalAvoided > 0 {
			m.Share = round3(float64(m.Avoided) / float64(r.TotalAvoided))
		}
		if priorityTotal > 0 {
			m.PriorityShare = round3(float64(prio[k]) / float64(priorityTotal))
		}
		out = append(out, *m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Avoided != out[j].Avoided {
			return out[i].Avoided > out[j].Avoided
		}
		return textnorm.Normalize(out[i].Tribe) < textnorm.Normalize(out[j].Tribe)
	})
	return out
}
