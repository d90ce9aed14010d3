// Package distrib implements the Distributed Servable Coordinator of
// spec.md §4.G: rank-table parsing/validation, agent registration, and
// predict fan-out with bounded per-rank timeouts.
package distrib

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/aiserve/msserve/mnerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RankEntry is one device slot in the rank table (spec.md §3 "Rank table").
type RankEntry struct {
	IP       string `json:"server_id"`
	DeviceID int    `json:"device_id"`
	RankID   int    `json:"rank_id"`
}

// rawRankEntry tolerates the source's string-typed JSON fields (spec.md
// §8 scenario 2: device_id/rank_id arrive as quoted strings).
type rawRankEntry struct {
	IP       string `json:"server_id"`
	DeviceID string `json:"device_id"`
	RankID   string `json:"rank_id"`
}

type rawRankTable struct {
	GroupList []rawRankEntry `json:"group_list"`
	StageSize int            `json:"stage_size"`
}

// RankTable is the parsed, validated rank table (spec.md §3).
type RankTable struct {
	RankSize      int
	StageSize     int
	ParallelCount int
	Entries       []RankEntry // indexed by RankID
}

// ParseRankTable parses the group_list JSON form and validates it per
// spec.md §3's invariants. On failure the message names the offending
// rank (spec.md §8 scenario 3).
func ParseRankTable(data []byte) (*RankTable, error) {
	var raw rawRankTable
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, mnerr.Wrap(mnerr.InvalidInputs, err, "parse rank table")
	}
	rankSize := len(raw.GroupList)
	stageSize := raw.StageSize
	if stageSize == 0 {
		stageSize = 1
	}
	entries := make([]RankEntry, rankSize)
	for _, re := range raw.GroupList {
		var e RankEntry
		e.IP = re.IP
		if _, err := fmt.Sscanf(re.DeviceID, "%d", &e.DeviceID); err != nil {
			return nil, mnerr.New(mnerr.InvalidInputs, "rank table: invalid device_id %q", re.DeviceID)
		}
		if _, err := fmt.Sscanf(re.RankID, "%d", &e.RankID); err != nil {
			return nil, mnerr.New(mnerr.InvalidInputs, "rank table: invalid rank_id %q", re.RankID)
		}
		if e.RankID < 0 || e.RankID >= rankSize {
			return nil, mnerr.New(mnerr.InvalidInputs, "rank table: rank_id %d out of range [0,%d)", e.RankID, rankSize)
		}
		entries[e.RankID] = e
	}
	rt := &RankTable{RankSize: rankSize, StageSize: stageSize, Entries: entries}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	rt.ParallelCount = rankSize / stageSize
	return rt, nil
}

// Validate enforces spec.md §3's rank-table invariants:
//   - stage_size > 0, rank_size > 0, rank_size mod stage_size == 0
//   - stage_size == 1: within one ip, device_ids are unique
//   - stage_size > 1: rank_size >= 8, parallel_count mod 8 == 0, and
//     every 8-rank window [i,i+8) has identical ip and device_id == i mod 8
func (rt *RankTable) Validate() error {
	if rt.StageSize <= 0 {
		return mnerr.New(mnerr.InvalidInputs, "rank table: stage_size must be > 0")
	}
	if rt.RankSize <= 0 {
		return mnerr.New(mnerr.InvalidInputs, "rank table: rank_size must be > 0")
	}
	if rt.RankSize%rt.StageSize != 0 {
		return mnerr.New(mnerr.InvalidInputs, "rank table: rank_size %d not a multiple of stage_size %d", rt.RankSize, rt.StageSize)
	}
	parallelCount := rt.RankSize / rt.StageSize

	if rt.StageSize == 1 {
		seen := make(map[string]map[int]bool)
		for _, e := range rt.Entries {
			if seen[e.IP] == nil {
				seen[e.IP] = make(map[int]bool)
			}
			if seen[e.IP][e.DeviceID] {
				return mnerr.New(mnerr.InvalidInputs, "rank table: duplicate device_id %d on ip %s (rank %d)", e.DeviceID, e.IP, e.RankID)
			}
			seen[e.IP][e.DeviceID] = true
		}
		return nil
	}

	if rt.RankSize < 8 {
		return mnerr.New(mnerr.InvalidInputs, "rank table: stage_size > 1 requires rank_size >= 8, got %d", rt.RankSize)
	}
	if parallelCount%8 != 0 {
		return mnerr.New(mnerr.InvalidInputs, "rank table: parallel_count %d must be a multiple of 8", parallelCount)
	}
	for i := 0; i+8 <= rt.RankSize; i += 8 {
		windowIP := rt.Entries[i].IP
		for k := 0; k < 8; k++ {
			e := rt.Entries[i+k]
			if e.IP != windowIP {
				return mnerr.New(mnerr.InvalidInputs, "rank table: rank %d ip %q differs from window leader %q", i+k, e.IP, windowIP)
			}
			if e.DeviceID != k {
				return mnerr.New(mnerr.InvalidInputs, "rank table: rank %d device_id %d, expected %d", i+k, e.DeviceID, k)
			}
		}
	}
	return nil
}
