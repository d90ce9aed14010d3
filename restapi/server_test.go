package restapi

import (
	"testing"

	"github.com/aiserve/msserve/mnerr"
)

func TestParsePathWithVersion(t *testing.T) {
	name, version, method, err := parsePath("/model/resnet/version/3:predict")
	if err != nil {
		t.Fatal(err)
	}
	if name != "resnet" || version != 3 || method != "predict" {
		t.Fatalf("got (%q,%d,%q)", name, version, method)
	}
}

func TestParsePathWithoutVersion(t *testing.T) {
	name, version, method, err := parsePath("/model/resnet:predict")
	if err != nil {
		t.Fatal(err)
	}
	if name != "resnet" || version != 0 || method != "predict" {
		t.Fatalf("got (%q,%d,%q)", name, version, method)
	}
}

func TestParsePathRejectsMissingMethod(t *testing.T) {
	_, _, _, err := parsePath("/model/resnet")
	if mnerr.Code(err) != mnerr.InvalidInputs {
		t.Fatalf("expected InvalidInputs, got %v", err)
	}
}

func TestParsePathRejectsMissingModel(t *testing.T) {
	_, _, _, err := parsePath("/model/:predict")
	if mnerr.Code(err) != mnerr.InvalidInputs {
		t.Fatalf("expected InvalidInputs, got %v", err)
	}
}

func TestParsePathRejectsOutOfRangeVersion(t *testing.T) {
	_, _, _, err := parsePath("/model/resnet/version/-1:predict")
	if mnerr.Code(err) != mnerr.InvalidInputs {
		t.Fatalf("expected InvalidInputs for negative version, got %v", err)
	}
}
