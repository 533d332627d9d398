package config

import "testing"

func TestProcessFlags(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ProcessFlags([]string{"-Wimplicit-return", "-Wno-all", "-Fdouble-frame", "-Fno-trampoline"}); err != nil {
		t.Fatal(err)
	}
	if !cfg.IsWarningEnabled(WarnImplicitReturn) {
		t.Error("-Wimplicit-return should win over -Wno-all")
	}
	if cfg.IsWarningEnabled(WarnUnreachableCode) || cfg.IsWarningEnabled(WarnExtra) {
		t.Error("-Wno-all left warnings enabled")
	}
	if !cfg.IsFeatureEnabled(FeatDoubleFrame) || cfg.IsFeatureEnabled(FeatTrampoline) {
		t.Errorf("features after flags: %+v", cfg.Features)
	}
	if !cfg.IsFeatureEnabled(FeatQualifyLabels) {
		t.Error("qualify-labels should stay enabled by default")
	}
}

func TestApplyFlagErrors(t *testing.T) {
	cfg := NewConfig()
	for _, flag := range []string{"-Wbogus", "-Fbogus", "-X", "-Zthing"} {
		if err := cfg.ApplyFlag(flag); err == nil {
			t.Errorf("ApplyFlag(%q) succeeded", flag)
		}
	}
}

func TestSetTarget(t *testing.T) {
	cfg := NewConfig()
	cfg.SetTarget("linux", "amd64", "arm64_apple")
	if cfg.QbeTarget != "arm64_apple" {
		t.Errorf("QbeTarget = %q", cfg.QbeTarget)
	}
	cfg.SetTarget("linux", "amd64", "vax")
	if cfg.QbeTarget != "rv64" {
		t.Errorf("unknown target fell back to %q, want rv64", cfg.QbeTarget)
	}
}
