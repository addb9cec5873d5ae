package db

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpandFeatures(t *testing.T) {
	got := ExpandFeatures(FeatureCreate | FeatureList | FeatureCompression)
	want := []Feature{FeatureCreate, FeatureList, FeatureCompression}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandFeatures mismatch (-want +got):\n%s", diff)
	}
	if got := ExpandFeatures(0); len(got) != 0 {
		t.Errorf("expected no features, got %v", got)
	}
}

func TestFeatureNames(t *testing.T) {
	if got := FeatureNames(FeatureLock | FeatureExists); got != "Lock,Exists" {
		t.Errorf("expected Lock,Exists, got %q", got)
	}
	if got := Feature(1 << 40).String(); got != "Unknown" {
		t.Errorf("expected Unknown, got %q", got)
	}
}
