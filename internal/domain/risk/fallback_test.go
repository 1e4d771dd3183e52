package risk

import "testing"

func TestRuleScorer_Assess(t *testing.T) {
	scorer := NewRuleScorer(DefaultConfig())

	tests := []struct {
		name  string
		v     Vitals
		score float64
		level Level
	}{
		{"normal", Vitals{HeartRate: 80, SpO2: 98, Temperature: 37}, 0, LevelLow},
		{"mild tachycardia", Vitals{HeartRate: 105, SpO2: 98, Temperature: 37}, 0.15, LevelLow},
		{"bradycardia", Vitals{HeartRate: 45, SpO2: 98, Temperature: 37}, 0.25, LevelLow},
		{"tachycardia and low spo2", Vitals{HeartRate: 115, SpO2: 91, Temperature: 37}, 0.6, LevelMedium},
		{"fever and mild desaturation", Vitals{HeartRate: 80, SpO2: 93, Temperature: 38.7}, 0.35, LevelLow},
		{"exactly at critical threshold", Vitals{HeartRate: 128, SpO2: 87, Temperature: 37}, 0.7, LevelMedium},
		{"hypothermia mix at threshold", Vitals{HeartRate: 102, SpO2: 91, Temperature: 34}, 0.7, LevelMedium},
		{"critical", Vitals{HeartRate: 112, SpO2: 89, Temperature: 38.6}, 0.9, LevelCritical},
		{"clamped to one", Vitals{HeartRate: 120, SpO2: 85, Temperature: 39.5}, 1, LevelCritical},
		{"hr boundary 110 uses lower tier", Vitals{HeartRate: 110, SpO2: 98, Temperature: 37}, 0.15, LevelLow},
		{"spo2 boundary 90 uses middle tier", Vitals{HeartRate: 80, SpO2: 90, Temperature: 37}, 0.3, LevelLow},
		{"temp boundary 39 uses lower tier", Vitals{HeartRate: 80, SpO2: 98, Temperature: 39}, 0.2, LevelLow},
		{"hr boundary 50 is normal", Vitals{HeartRate: 50, SpO2: 95, Temperature: 35}, 0, LevelLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Assess(tt.v)
			if got.Score != tt.score {
				t.Errorf("score = %v, want %v", got.Score, tt.score)
			}
			if got.Level != tt.level {
				t.Errorf("level = %s, want %s", got.Level, tt.level)
			}
			if got.Source != SourceFallback {
				t.Errorf("source = %s, want fallback", got.Source)
			}
		})
	}
}

func TestRuleScorer_ScoreAlwaysInRange(t *testing.T) {
	scorer := NewRuleScorer(DefaultConfig())
	for hr := 0.0; hr <= 300; hr += 15 {
		for spo2 := 0.0; spo2 <= 100; spo2 += 5 {
			for temp := 30.0; temp <= 45; temp += 1.5 {
				s := scorer.Score(Vitals{HeartRate: hr, SpO2: spo2, Temperature: temp})
				if s < 0 || s > 1 {
					t.Fatalf("score %v out of range for hr=%v spo2=%v temp=%v", s, hr, spo2, temp)
				}
			}
		}
	}
}

func TestThresholds_LevelFor(t *testing.T) {
	th := DefaultConfig().Thresholds
	if th.LevelFor(0.4) != LevelLow {
		t.Error("0.4 should be low")
	}
	if th.LevelFor(0.41) != LevelMedium {
		t.Error("0.41 should be medium")
	}
	if th.LevelFor(0.7) != LevelMedium {
		t.Error("0.7 should be medium")
	}
	if th.LevelFor(0.71) != LevelCritical {
		t.Error("0.71 should be critical")
	}
}
