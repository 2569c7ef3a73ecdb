// Package monitoring - quality.go derives the quality snapshot from the
// interaction log.
package monitoring

import (
	"sort"
	"strings"
)

// QualityReport is the quality/metrics snapshot served to operators.
type QualityReport struct {
	TotalResponses int                      `json:"total_responses"`
	SourceCounts   map[string]int           `json:"source_counts"`
	SourceRates    map[string]float64       `json:"source_rates"`
	Latency        LatencyStats             `json:"latency"`
	LatencyBySrc   map[string]LatencyStats  `json:"latency_by_source"`
	Speakers       map[string]SpeakerReport `json:"speakers"`
}

// LatencyStats holds latency percentiles in milliseconds.
type LatencyStats struct {
	P50 int64 `json:"p50_ms"`
	P90 int64 `json:"p90_ms"`
	P99 int64 `json:"p99_ms"`
}

// SpeakerReport aggregates per-speaker quality signals.
type SpeakerReport struct {
	Responses           int          `json:"responses"`
	FallbackRate        float64      `json:"fallback_rate"`
	RepetitionRate      float64      `json:"repetition_rate"`
	NoveltyRate         float64      `json:"novelty_rate"`
	VoiceSeparationRate float64      `json:"voice_separation_rate"`
	AvgScore            float64      `json:"avg_score"`
	TopNGrams           []NGramCount `json:"top_ngrams,omitempty"`
}

// NGramCount is one repeated trigram.
type NGramCount struct {
	NGram string `json:"ngram"`
	Count int    `json:"count"`
}

// BuildReport computes the quality snapshot from interaction records.
func BuildReport(records []InteractionRecord) QualityReport {
	report := QualityReport{
		TotalResponses: len(records),
		SourceCounts:   make(map[string]int),
		SourceRates:    make(map[string]float64),
		LatencyBySrc:   make(map[string]LatencyStats),
		Speakers:       make(map[string]SpeakerReport),
	}
	if len(records) == 0 {
		return report
	}

	var allLatencies []int64
	latBySrc := make(map[string][]int64)
	type speakerAgg struct {
		responses, fallbacks, repetition, novelty, voiceSep int
		scoreSum                                            int
		texts                                               []string
	}
	speakers := make(map[string]*speakerAgg)

	for _, rec := range records {
		report.SourceCounts[rec.Source]++
		allLatencies = append(allLatencies, rec.LatencyMs)
		latBySrc[rec.Source] = append(latBySrc[rec.Source], rec.LatencyMs)

		agg := speakers[rec.Speaker]
		if agg == nil {
			agg = &speakerAgg{}
			speakers[rec.Speaker] = agg
		}
		agg.responses++
		agg.scoreSum += rec.Score
		agg.texts = append(agg.texts, rec.Text)
		if rec.Source == "fallback" || rec.Source == "cooldown" {
			agg.fallbacks++
		}
		for _, flag := range rec.GuardFlags {
			switch flag {
			case "repetitive":
				agg.repetition++
			case "stale", "opener_repeat", "global_echo":
				agg.novelty++
			case "voice_separation_fail":
				agg.voiceSep++
			}
		}
	}

	total := float64(len(records))
	for src, count := range report.SourceCounts {
		report.SourceRates[src] = float64(count) / total
	}
	report.Latency = percentiles(allLatencies)
	for src, lats := range latBySrc {
		report.LatencyBySrc[src] = percentiles(lats)
	}

	for speaker, agg := range speakers {
		n := float64(agg.responses)
		report.Speakers[speaker] = SpeakerReport{
			Responses:           agg.responses,
			FallbackRate:        float64(agg.fallbacks) / n,
			RepetitionRate:      float64(agg.repetition) / n,
			NoveltyRate:         float64(agg.novelty) / n,
			VoiceSeparationRate: float64(agg.voiceSep) / n,
			AvgScore:            float64(agg.scoreSum) / n,
			TopNGrams:           topTrigrams(agg.texts, 5),
		}
	}
	return report
}

func percentiles(latencies []int64) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}
	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(p float64) int64 {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}
	return LatencyStats{P50: at(0.50), P90: at(0.90), P99: at(0.99)}
}

// topTrigrams returns the most repeated lowercase trigrams across texts,
// skipping trigrams seen only once.
func topTrigrams(texts []string, limit int) []NGramCount {
	counts := make(map[string]int)
	for _, text := range texts {
		words := strings.Fields(strings.ToLower(strings.Map(stripPunct, text)))
		for i := 0; i+3 <= len(words); i++ {
			counts[strings.Join(words[i:i+3], " ")]++
		}
	}
	var out []NGramCount
	for ngram, count := range counts {
		if count >= 2 {
			out = append(out, NGramCount{NGram: ngram, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].NGram < out[j].NGram
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func stripPunct(r rune) rune {
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '\'' {
		return r
	}
	return ' '
}
