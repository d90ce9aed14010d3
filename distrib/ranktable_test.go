package distrib

import (
	"testing"
)

func TestParseRankTableGroupListStageSizeOne(t *testing.T) {
	data := []byte(`{
		"group_list": [
			{"server_id":"10.0.0.1","device_id":"0","rank_id":"0"},
			{"server_id":"10.0.0.1","device_id":"1","rank_id":"1"},
			{"server_id":"10.0.0.1","device_id":"2","rank_id":"2"},
			{"server_id":"10.0.0.1","device_id":"3","rank_id":"3"},
			{"server_id":"10.0.0.1","device_id":"4","rank_id":"4"},
			{"server_id":"10.0.0.1","device_id":"5","rank_id":"5"},
			{"server_id":"10.0.0.1","device_id":"6","rank_id":"6"},
			{"server_id":"10.0.0.1","device_id":"7","rank_id":"7"}
		],
		"stage_size": 1
	}`)
	rt, err := ParseRankTable(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.RankSize != 8 || rt.StageSize != 1 || rt.ParallelCount != 8 {
		t.Fatalf("unexpected rank table: %+v", rt)
	}
}

func TestParseRankTableStageSizeTwoMisorderedDeviceID(t *testing.T) {
	data := []byte(`{"group_list":[
		{"server_id":"10.0.0.1","device_id":"0","rank_id":"0"},
		{"server_id":"10.0.0.1","device_id":"1","rank_id":"1"},
		{"server_id":"10.0.0.1","device_id":"2","rank_id":"2"},
		{"server_id":"10.0.0.1","device_id":"3","rank_id":"3"},
		{"server_id":"10.0.0.1","device_id":"4","rank_id":"4"},
		{"server_id":"10.0.0.1","device_id":"5","rank_id":"5"},
		{"server_id":"10.0.0.1","device_id":"6","rank_id":"6"},
		{"server_id":"10.0.0.1","device_id":"7","rank_id":"7"},
		{"server_id":"10.0.0.2","device_id":"0","rank_id":"8"},
		{"server_id":"10.0.0.2","device_id":"3","rank_id":"9"},
		{"server_id":"10.0.0.2","device_id":"2","rank_id":"10"},
		{"server_id":"10.0.0.2","device_id":"3","rank_id":"11"},
		{"server_id":"10.0.0.2","device_id":"4","rank_id":"12"},
		{"server_id":"10.0.0.2","device_id":"5","rank_id":"13"},
		{"server_id":"10.0.0.2","device_id":"6","rank_id":"14"},
		{"server_id":"10.0.0.2","device_id":"7","rank_id":"15"}
	],"stage_size":2}`)
	_, err := ParseRankTable(data)
	if err == nil {
		t.Fatal("expected validation error for mis-ordered device_id at rank 9")
	}
	if got := err.Error(); !contains(got, "rank 9") {
		t.Fatalf("expected error to name rank 9, got: %s", got)
	}
}

func TestValidateRejectsStageSizeNotDividingRankSize(t *testing.T) {
	rt := &RankTable{RankSize: 7, StageSize: 2, Entries: make([]RankEntry, 7)}
	if err := rt.Validate(); err == nil {
		t.Fatal("expected error for 7 not divisible by 2")
	}
}

func TestValidateRejectsDuplicateDeviceIDStageSizeOne(t *testing.T) {
	rt := &RankTable{
		RankSize:  2,
		StageSize: 1,
		Entries: []RankEntry{
			{IP: "10.0.0.1", DeviceID: 0, RankID: 0},
			{IP: "10.0.0.1", DeviceID: 0, RankID: 1},
		},
	}
	if err := rt.Validate(); err == nil {
		t.Fatal("expected error for duplicate device_id on same ip")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
